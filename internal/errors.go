package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidOutTradeNo ErrorCode = "INVALID_OUT_TRADE_NO"
	ErrCodeInvalidSubject    ErrorCode = "INVALID_SUBJECT"
	ErrCodeInvalidBody       ErrorCode = "INVALID_BODY"
	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeAmountOutOfRange  ErrorCode = "AMOUNT_OUT_OF_RANGE"
	ErrCodeAmountPrecision   ErrorCode = "AMOUNT_PRECISION"

	ErrCodeOrderNotFound     ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeDuplicateOrder    ErrorCode = "DUPLICATE_ORDER"
	ErrCodeInvalidTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeUnknownStatus     ErrorCode = "UNKNOWN_STATUS"
	ErrCodeOrderNotPayable   ErrorCode = "ORDER_NOT_PAYABLE"

	ErrCodeSigningFailed      ErrorCode = "SIGNING_FAILED"
	ErrCodeCallbackAuthFailed ErrorCode = "CALLBACK_AUTH_FAILED"
	ErrCodePaymentURLFailed   ErrorCode = "PAYMENT_URL_FAILED"

	ErrCodeStoreInitFailed  ErrorCode = "STORE_INIT_FAILED"
	ErrCodeStoreWriteFailed ErrorCode = "STORE_WRITE_FAILED"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeOperationDisabled  ErrorCode = "OPERATION_DISABLED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return fmt.Sprintf("%s: %s", e.Message, e.GetDetailedMessage())
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so sentinels below work with errors.Is regardless of
// message, details or cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Fields returns the names of every field that failed validation.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

// TransitionDetails is attached to INVALID_STATUS_TRANSITION errors.
type TransitionDetails struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewDuplicateOrderError(outTradeNo string) *AppError {
	return NewConflictError(fmt.Sprintf("order with out_trade_no %s already exists", outTradeNo), ErrCodeDuplicateOrder).
		WithDetails(map[string]string{"out_trade_no": outTradeNo})
}

func NewOrderNotFoundError(key string) *AppError {
	return NewNotFoundError(fmt.Sprintf("order %s not found", key), ErrCodeOrderNotFound)
}

func NewInvalidTransitionError(from, to string) *AppError {
	return NewConflictError(fmt.Sprintf("invalid status transition from %s to %s", from, to), ErrCodeInvalidTransition).
		WithDetails(TransitionDetails{From: from, To: to})
}

func NewUnknownStatusError(status string) *AppError {
	return NewValidationError(fmt.Sprintf("unknown order status %q", status), ErrCodeUnknownStatus)
}

func NewSigningError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeSigningFailed,
		Message:    "failed to sign gateway request",
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewStoreInitError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeStoreInitFailed,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewStoreWriteError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeStoreWriteFailed,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConfigError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeConfigInvalid,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewPaymentURLError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodePaymentURLFailed,
		Message:    "order created but payment url could not be generated",
		StatusCode: http.StatusAccepted,
		Cause:      cause,
	}
}

// Sentinels for errors.Is; only Code is compared.
var (
	ErrValidationFailed  = NewValidationError("Validation failed", ErrCodeValidationFailed)
	ErrDuplicateOrder    = NewConflictError("order already exists", ErrCodeDuplicateOrder)
	ErrOrderNotFound     = NewNotFoundError("order not found", ErrCodeOrderNotFound)
	ErrInvalidTransition = NewConflictError("invalid status transition", ErrCodeInvalidTransition)
	ErrUnknownStatus     = NewValidationError("unknown order status", ErrCodeUnknownStatus)
	ErrOrderNotPayable   = NewConflictError("order is not payable in its current status", ErrCodeOrderNotPayable)
	ErrSigningFailed     = NewSigningError(nil)
	ErrStoreInitFailed   = NewStoreInitError("order store initialization failed", nil)
	ErrStoreWriteFailed  = NewStoreWriteError("order store write failed", nil)
	ErrConfigInvalid     = NewConfigError("invalid configuration", nil)
	ErrPaymentURLFailed  = NewPaymentURLError(nil)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid username or password", ErrCodeInvalidCredentials)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrOperationDisabled  = NewForbiddenError("operation disabled by configuration", ErrCodeOperationDisabled)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
