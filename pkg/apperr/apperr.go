// Package apperr defines the error taxonomy shared by all services.
// Only RpcError is safe to retry; every other code needs a corrected
// request or operator action.
package apperr

import (
	"github.com/pkg/errors"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnsupportedChain    Code = "UNSUPPORTED_CHAIN"
	CodeUnsupportedToken    Code = "UNSUPPORTED_TOKEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeForbidden           Code = "FORBIDDEN"
	CodeAlreadyProcessed    Code = "ALREADY_PROCESSED"
	CodeDuplicateTxHash     Code = "DUPLICATE_TX_HASH"
	CodeRPC                 Code = "RPC_ERROR"
	CodeVerificationFailed  Code = "VERIFICATION_FAILED"
	CodePendingConfirmation Code = "PENDING_CONFIRMATION"
	CodeAmountMismatch      Code = "AMOUNT_MISMATCH"
	CodeTokenMismatch       Code = "TOKEN_MISMATCH"
	CodeReceiverMismatch    Code = "RECEIVER_MISMATCH"
	CodeInsufficientForFee  Code = "INSUFFICIENT_FOR_FEE"
	CodeExpired             Code = "EXPIRED"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: errors.WithStack(err)}
}

// CodeOf extracts the taxonomy code from err, or "" when err is not an
// *Error anywhere in its chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// Retryable reports whether the caller may retry with backoff.
func Retryable(err error) bool {
	return Is(err, CodeRPC)
}
