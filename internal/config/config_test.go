package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("SESSION_FLUSH_INTERVAL", "45s")
	t.Setenv("CUTOFF_UTC_OFFSET_HOURS", "-5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Rewards.FlushInterval != 45*time.Second {
		t.Errorf("Rewards.FlushInterval = %v, want %v", cfg.Rewards.FlushInterval, 45*time.Second)
	}
	if cfg.Rewards.CutoffOffsetHours != -5 {
		t.Errorf("Rewards.CutoffOffsetHours = %v, want -5", cfg.Rewards.CutoffOffsetHours)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Rewards.CutoffHour != 20 {
		t.Errorf("Rewards.CutoffHour = %v, want 20", cfg.Rewards.CutoffHour)
	}
	if cfg.Rewards.CutoffOffsetHours != -4 {
		t.Errorf("Rewards.CutoffOffsetHours = %v, want -4", cfg.Rewards.CutoffOffsetHours)
	}
	if cfg.Rewards.HeartbeatInterval != time.Second {
		t.Errorf("Rewards.HeartbeatInterval = %v, want 1s", cfg.Rewards.HeartbeatInterval)
	}
	if cfg.Rewards.DebounceDelay != 5*time.Second {
		t.Errorf("Rewards.DebounceDelay = %v, want 5s", cfg.Rewards.DebounceDelay)
	}
	if cfg.Rewards.CompletedReferralHours != 100 {
		t.Errorf("Rewards.CompletedReferralHours = %v, want 100", cfg.Rewards.CompletedReferralHours)
	}
	if cfg.Auth.SessionTTL != 12*time.Hour {
		t.Errorf("Auth.SessionTTL = %v, want 12h", cfg.Auth.SessionTTL)
	}
}

func TestLoadConfig_InvalidCutoffHour(t *testing.T) {
	t.Setenv("CUTOFF_HOUR", "24")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for CUTOFF_HOUR=24")
	}
}

func TestPostgresConfig_URL(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Database: "rewards", User: "u", Password: "p"}

	want := "postgres://u:p@db:5432/rewards?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns integer when valid",
			key:          "TEST_INT",
			defaultValue: 100,
			envValue:     "200",
			want:         200,
		},
		{
			name:         "returns negative integer",
			key:          "TEST_INT_NEG",
			defaultValue: 0,
			envValue:     "-4",
			want:         -4,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_INT_INVALID",
			defaultValue: 100,
			envValue:     "invalid",
			want:         100,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOTSET",
			defaultValue: 100,
			envValue:     "",
			want:         100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "99.5")
	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 99.5 {
		t.Errorf("getEnvAsFloat() = %v, want 99.5", got)
	}

	t.Setenv("TEST_FLOAT_INVALID", "abc")
	if got := getEnvAsFloat("TEST_FLOAT_INVALID", 1); got != 1 {
		t.Errorf("getEnvAsFloat() = %v, want 1", got)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOTSET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " 0xabc, ,0xdef ,")
	got := getEnvAsList("TEST_LIST")
	if len(got) != 2 || got[0] != "0xabc" || got[1] != "0xdef" {
		t.Errorf("getEnvAsList() = %v, want [0xabc 0xdef]", got)
	}
	if got := getEnvAsList("TEST_LIST_NOTSET"); len(got) != 0 {
		t.Errorf("getEnvAsList() unset = %v, want empty", got)
	}
}
