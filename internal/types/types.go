// Package types provides common type definitions for the uptime rewards system.
package types

// Role is the privilege an account holds.
type Role string

const (
	// RoleUser is every account created on first wallet contact
	RoleUser Role = "user"
	// RoleAdmin may use the admin endpoints
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// SessionState is the reconciliation state of a hosted session controller.
type SessionState string

const (
	// StateIdle means no session is running
	StateIdle SessionState = "idle"
	// StateBootstrapping means the account says running but the gap has not been replayed
	StateBootstrapping SessionState = "bootstrapping"
	// StateLive means the heartbeat is active
	StateLive SessionState = "live"
	// StateStopped means the user explicitly ended the session
	StateStopped SessionState = "stopped"
)

// Visibility mirrors the client's page visibility.
type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// AdminAction is an authoritative overwrite an admin applies to an account.
type AdminAction string

const (
	ActionBan        AdminAction = "ban"
	ActionUnban      AdminAction = "unban"
	ActionResetDaily AdminAction = "reset_daily"
	ActionSetPoints  AdminAction = "set_points"
)

// Valid reports whether a is a known admin action.
func (a AdminAction) Valid() bool {
	switch a {
	case ActionBan, ActionUnban, ActionResetDaily, ActionSetPoints:
		return true
	}
	return false
}

// Error codes carried in ServiceError.Code
const (
	ErrCodeInvalidWallet    = "INVALID_WALLET"
	ErrCodeInvalidParameter = "INVALID_PARAMETER"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeBanned           = "ACCOUNT_BANNED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeTaken            = "ALREADY_TAKEN"
	ErrCodeAlreadySet       = "ALREADY_SET"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeDatabase         = "DATABASE_ERROR"
	ErrCodeCache            = "CACHE_ERROR"
	ErrCodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
