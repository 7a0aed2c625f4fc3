package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeBookingNotFound     Code = "BOOKING_NOT_FOUND"
	CodeCompanyNotFound     Code = "COMPANY_NOT_FOUND"
	CodeInvalidBookingState Code = "INVALID_BOOKING_STATE"
	CodeCompanyNotActive    Code = "COMPANY_NOT_ACTIVE"
	CodeAlreadyAssigned     Code = "ALREADY_ASSIGNED"
	CodeNoEligibleCompany   Code = "NO_ELIGIBLE_COMPANY"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeConflict            Code = "CONFLICT"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Class groups codes by how a caller should react to them.
type Class string

const (
	ClassNotFound    Class = "not_found"
	ClassState       Class = "state"
	ClassIdempotency Class = "idempotency"
	ClassExhausted   Class = "exhausted"
	ClassValidation  Class = "validation"
	ClassTransient   Class = "transient"
	ClassInternal    Class = "internal"
)

type Metadata struct {
	Class         Class
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeBookingNotFound: {
		Class:         ClassNotFound,
		PublicMessage: "booking not found",
	},
	CodeCompanyNotFound: {
		Class:         ClassNotFound,
		PublicMessage: "company not found",
	},
	CodeInvalidBookingState: {
		Class:         ClassState,
		PublicMessage: "booking is not in a dispatchable state",
	},
	CodeCompanyNotActive: {
		Class:         ClassState,
		PublicMessage: "company is not active",
	},
	CodeAlreadyAssigned: {
		Class:         ClassIdempotency,
		PublicMessage: "booking already assigned",
	},
	CodeNoEligibleCompany: {
		Class:         ClassExhausted,
		PublicMessage: "no active company available",
	},
	CodeInvalidInput: {
		Class:         ClassValidation,
		PublicMessage: "invalid input",
	},
	CodeConflict: {
		Class:         ClassTransient,
		Retryable:     true,
		PublicMessage: "concurrent update conflict",
	},
	CodeInternal: {
		Class:         ClassInternal,
		PublicMessage: "internal error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// ClassOf returns the class for err; untyped errors are internal.
func ClassOf(err error) Class {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Class
	}
	return ClassInternal
}
