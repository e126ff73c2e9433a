package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Remote authentication handshake
	ErrCodeAuthProtocol   ErrorCode = "AUTH_PROTOCOL"
	ErrCodeNoPendingAuth  ErrorCode = "NO_PENDING_AUTH"
	ErrCodeNeedSecondAuth ErrorCode = "NEED_SECOND_FACTOR"

	// Remote job services
	ErrCodeTransientRemote    ErrorCode = "TRANSIENT_REMOTE"
	ErrCodeReconcileAmbiguous ErrorCode = "RECONCILE_AMBIGUOUS"

	// Rate limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeCooldown          ErrorCode = "COOLDOWN_ACTIVE"

	// Entitlements
	ErrCodeNoEntitlement ErrorCode = "NO_ENTITLEMENT"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

// Conflict reports a single-flight violation, naming the job already running.
func Conflict(jobID string) *AppError {
	return New(ErrCodeConflict, fmt.Sprintf("a job is already running: %s", jobID)).
		WithDetails(map[string]string{"jobId": jobID})
}

// AuthProtocol marks a terminal authentication failure; the flow must
// restart from phone entry.
func AuthProtocol(message string) *AppError {
	return New(ErrCodeAuthProtocol, message)
}

func NoPendingAuth() *AppError {
	return New(ErrCodeNoPendingAuth, "no authentication in progress; start from phone entry")
}

func NeedSecondFactor() *AppError {
	return New(ErrCodeNeedSecondAuth, "second factor password required")
}

// TransientRemote wraps a remote failure that says nothing about the
// remote job's actual state.
func TransientRemote(service string, cause error) *AppError {
	return Wrap(ErrCodeTransientRemote, fmt.Sprintf("service %s unreachable", service), cause)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func CooldownActive() *AppError {
	return New(ErrCodeCooldown, "Too many repeated requests; slow down")
}

func NoEntitlement() *AppError {
	return New(ErrCodeNoEntitlement, "no active entitlement")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
