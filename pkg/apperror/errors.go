package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can switch on it instead of matching codes.
type Kind int

const (
	KindFatal Kind = iota
	KindInvalidAmount
	KindNotFound
	KindInsufficientFunds
	KindNotAnnullable
	KindSenderEqualsReceiver
	KindRetryable
	KindValidation
)

var kindNames = map[Kind]string{
	KindFatal:                "FATAL",
	KindInvalidAmount:        "INVALID_AMOUNT",
	KindNotFound:             "NOT_FOUND",
	KindInsufficientFunds:    "INSUFFICIENT_FUNDS",
	KindNotAnnullable:        "NOT_ANNULLABLE",
	KindSenderEqualsReceiver: "SENDER_EQUALS_RECEIVER",
	KindRetryable:            "RETRYABLE",
	KindValidation:           "VALIDATION",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind   `json:"-"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// KindOf reports the kind of err. Errors that are not AppErrors are Fatal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindFatal
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether the caller may resubmit with the same idempotency token.
func IsRetryable(err error) bool {
	return Is(err, KindRetryable)
}

// ---- Ledger Business Rules (LED) ----

func ErrInvalidAmount() *AppError {
	return New(KindInvalidAmount, "LED_001", "Amount must be positive", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "LED_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInsufficientFunds() *AppError {
	return New(KindInsufficientFunds, "LED_003", "Insufficient balance", http.StatusPaymentRequired)
}

func ErrNotAnnullable(entity string) *AppError {
	return New(KindNotAnnullable, "LED_004", fmt.Sprintf("%s can no longer be annulled", entity), http.StatusConflict)
}

func ErrAlreadyAnnulled(entity string) *AppError {
	return New(KindNotAnnullable, "LED_005", fmt.Sprintf("%s is already annulled", entity), http.StatusConflict)
}

// ErrAmountScale rejects amounts finer than a cent.
func ErrAmountScale() *AppError {
	return New(KindInvalidAmount, "LED_008", "Amount must have at most 2 decimal places", http.StatusBadRequest)
}

func ErrSenderEqualsReceiver() *AppError {
	return New(KindSenderEqualsReceiver, "LED_006", "Sender and receiver must differ", http.StatusUnprocessableEntity)
}

func ErrAccountDisabled() *AppError {
	return New(KindNotFound, "LED_007", "Account is disabled", http.StatusNotFound)
}

// ---- Transactions (TX) ----

// ErrRetryable reports a conflict or timeout; resubmit with the same token.
func ErrRetryable(err error) *AppError {
	return Wrap(KindRetryable, "TX_001", "Concurrent update conflict, retry the request", http.StatusServiceUnavailable, err)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(KindRetryable, "RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Request Validation (REQ) ----

// Validation reports malformed input rejected before it reaches the ledger.
func Validation(message string) *AppError {
	return New(KindValidation, "REQ_001", message, http.StatusBadRequest)
}

// ErrTokenConflict reports a token already spent on another account's request.
func ErrTokenConflict() *AppError {
	return New(KindValidation, "REQ_002", "Idempotency token belongs to another request", http.StatusConflict)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an unexpected storage or infrastructure failure.
func InternalError(err error) *AppError {
	return Wrap(KindFatal, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
