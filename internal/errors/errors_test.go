package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/uptime-rewards/internal/types"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "categorized error passes through",
			err:        NewInvalidWalletError("0x12"),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrCodeInvalidWallet,
		},
		{
			name:       "wrapped categorized error is found",
			err:        fmt.Errorf("login: %w", NewBannedError("0xabc")),
			wantStatus: http.StatusForbidden,
			wantCode:   types.ErrCodeBanned,
		},
		{
			name:       "service error maps by code",
			err:        &types.ServiceError{Code: types.ErrCodeNotFound, Message: "no account"},
			wantStatus: http.StatusNotFound,
			wantCode:   types.ErrCodeNotFound,
		},
		{
			name:       "unknown service error is internal",
			err:        &types.ServiceError{Code: "SOMETHING", Message: "x"},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "SOMETHING",
		},
		{
			name:       "plain error is internal",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err)
			if got.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %v, want %v", got.StatusCode, tt.wantStatus)
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", got.Code, tt.wantCode)
			}
		})
	}

	if Categorize(nil) != nil {
		t.Error("Categorize(nil) should be nil")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewDatabaseError("flush", fmt.Errorf("conn reset"))) {
		t.Error("database errors should be retryable")
	}
	if !IsRetryable(NewServiceUnavailableError("redis")) {
		t.Error("service unavailable should be retryable")
	}
	if IsRetryable(NewInvalidParameterError("value", "not finite")) {
		t.Error("validation errors should not be retryable")
	}
}

func TestSystemErrors(t *testing.T) {
	if !IsSystemError(NewServiceUnavailableError("postgres")) {
		t.Error("service unavailable should be a system error")
	}
	if IsSystemError(NewForbiddenError("admin only")) {
		t.Error("forbidden should not be a system error")
	}
	if !IsSystemError(NewCacheError("tick", nil)) {
		t.Error("cache error should be a system error")
	}
}

func TestToServiceError(t *testing.T) {
	svcErr := NewInvalidParameterError("value", "not finite").ToServiceError()
	if svcErr.Code != types.ErrCodeInvalidParameter {
		t.Errorf("Code = %s", svcErr.Code)
	}
	if svcErr.Details["parameter"] != "value" {
		t.Errorf("Details = %v", svcErr.Details)
	}
	if Categorize(svcErr).StatusCode != 400 {
		t.Error("a service error categorizes back to its status")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewConflictError("claimed"))
	if !HasCode(err, types.ErrCodeConflict) {
		t.Error("HasCode() = false, want true")
	}
	if HasCode(err, types.ErrCodeBanned) {
		t.Error("HasCode() = true, want false")
	}
}

func TestErrorString(t *testing.T) {
	err := NewDatabaseError("read account", fmt.Errorf("timeout"))
	want := "DATABASE_ERROR: database error during read account (caused by: timeout)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
