// Package errclass defines the stable, machine-readable error classes of tlw.
package errclass

import "fmt"

// TLWError is a stable, machine-readable error class.
type TLWError struct {
	Code    string
	Message string

	cause error
}

func (e *TLWError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same class code.
func (e *TLWError) Is(target error) bool {
	t, ok := target.(*TLWError)
	return ok && e.Code == t.Code
}

// Unwrap returns the error this class was wrapped around, if any.
func (e *TLWError) Unwrap() error {
	return e.cause
}

// Reason returns the human-readable part of the error without the code prefix.
func (e *TLWError) Reason() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

// WithMessage returns a new TLWError with the same Code but a specific message.
func (e *TLWError) WithMessage(msg string) *TLWError {
	return &TLWError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new TLWError with a formatted message.
func (e *TLWError) WithMessagef(format string, args ...any) *TLWError {
	return &TLWError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. The message is the cause's text unchanged; errors.Is
// still matches both the class and anything in the cause chain.
func (e *TLWError) Wrap(err error) *TLWError {
	if err == nil {
		return nil
	}
	return &TLWError{Code: e.Code, Message: ReasonOf(err), cause: err}
}

// ReasonOf extracts the message of a classified error, or err.Error() otherwise.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	if te, ok := err.(*TLWError); ok {
		return te.Reason()
	}
	return err.Error()
}

// CodeOf returns the class code of err, or "" if err is not classified.
func CodeOf(err error) string {
	for err != nil {
		if te, ok := err.(*TLWError); ok {
			return te.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

var (
	// Lifecycle errors detected locally, before any ledger call.
	ErrNotConnected        = &TLWError{Code: "E_NOT_CONNECTED"}
	ErrInvalidInput        = &TLWError{Code: "E_INVALID_INPUT"}
	ErrOperationInProgress = &TLWError{Code: "E_OPERATION_IN_PROGRESS"}
	ErrNotWithdrawable     = &TLWError{Code: "E_NOT_WITHDRAWABLE"}

	// Upstream failures, reason preserved verbatim.
	ErrLedger       = &TLWError{Code: "E_LEDGER"}
	ErrFetch        = &TLWError{Code: "E_FETCH"}
	ErrLockAnomaly  = &TLWError{Code: "E_LOCK_ANOMALY"}
	ErrLockNotFound = &TLWError{Code: "E_LOCK_NOT_FOUND"}
	ErrLocked       = &TLWError{Code: "E_LOCKED"}
	ErrWithdrawn    = &TLWError{Code: "E_ALREADY_WITHDRAWN"}

	// Workspace errors.
	ErrConfigInvalid      = &TLWError{Code: "E_CONFIG_INVALID"}
	ErrFormatUnsupported  = &TLWError{Code: "E_FORMAT_UNSUPPORTED"}
	ErrJournalChainBroken = &TLWError{Code: "E_JOURNAL_CHAIN_BROKEN"}
	ErrIdentityInvalid    = &TLWError{Code: "E_IDENTITY_INVALID"}
)
