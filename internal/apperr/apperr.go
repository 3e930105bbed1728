// Package apperr defines the error kinds surfaced by the order pipeline and
// their mapping onto HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindExternal
)

// Conflict codes.
const (
	CodeInsufficientStock  = "insufficient_stock"
	CodeProductUnavailable = "product_unavailable"
	CodeEmptyCart          = "empty_cart"
	CodeAlreadyPaid        = "already_paid"
	CodeExceedsStock       = "exceeds_stock"
	CodeAmountMismatch     = "amount_mismatch"
	CodePaymentFailed      = "payment_failed"
	CodePaymentIncomplete  = "payment_incomplete"
	CodeInvalidTransition  = "invalid_transition"
	CodeConcurrentUpdate   = "concurrent_update"
)

// FieldError is a single failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the application error carried from services to handlers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Validation(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Code: "validation_failed", Message: "Validation failed", Fields: fields}
}

func Invalid(field, message string) *Error {
	return Validation([]FieldError{{Field: field, Message: message}})
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "unauthorized", Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "forbidden", Message: message}
}

func External(message string, err error) *Error {
	return &Error{Kind: KindExternal, Code: "external_service", Message: message, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: "Internal server error", Err: err}
}

// InsufficientStock names the product that could not be reserved.
func InsufficientStock(productName string) *Error {
	return Conflict(CodeInsufficientStock, fmt.Sprintf("Insufficient stock for %s", productName))
}

func ProductUnavailable(productName string) *Error {
	return Conflict(CodeProductUnavailable, fmt.Sprintf("%s is no longer available", productName))
}

// As extracts an *Error from err, wrapping anything else as internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsCode reports whether err is an application error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
