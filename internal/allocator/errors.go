package allocator

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindConflict            Kind = "CONFLICT"
	KindPaymentNotCompleted Kind = "PAYMENT_NOT_COMPLETED"
	KindPaymentProvider     Kind = "PAYMENT_PROVIDER_ERROR"
	KindNotFound            Kind = "NOT_FOUND"
)

// kindError lets callers match on the kind alone: errors.Is(err, ErrConflict).
type kindError Kind

func (k kindError) Error() string { return strings.ToLower(string(k)) }

var (
	ErrValidation          error = kindError(KindValidation)
	ErrConflict            error = kindError(KindConflict)
	ErrPaymentNotCompleted error = kindError(KindPaymentNotCompleted)
	ErrPaymentProvider     error = kindError(KindPaymentProvider)
	ErrNotFound            error = kindError(KindNotFound)
)

// error codes
const (
	CodeInvalidSlot            = "INVALID_SLOT"
	CodeInvalidDuration        = "INVALID_DURATION"
	CodeInvalidDays            = "INVALID_DAYS"
	CodeInvalidContent         = "INVALID_CONTENT"
	CodeInvalidPrice           = "INVALID_PRICE"
	CodeInvalidStatus          = "INVALID_STATUS"
	CodeReasonRequired         = "REASON_REQUIRED"
	CodePaymentRequired        = "PAYMENT_REQUIRED"
	CodePaymentNotApplicable   = "PAYMENT_NOT_APPLICABLE"
	CodeProviderUnsupported    = "PROVIDER_UNSUPPORTED"
	CodePriceNotConfigured     = "PRICE_NOT_CONFIGURED"
	CodeSlotOccupied           = "SLOT_OCCUPIED"
	CodeSlotOccupiedByOverride = "SLOT_OCCUPIED_BY_OVERRIDE"
	CodeConcurrentSubmission   = "CONCURRENT_SUBMISSION"
	CodeBookingClosed          = "BOOKING_CLOSED"
	CodeHoldExpired            = "HOLD_EXPIRED"
	CodeAlreadyPaid            = "ALREADY_PAID"
	CodePaymentInProgress      = "PAYMENT_IN_PROGRESS"
	CodeReferenceMismatch      = "REFERENCE_MISMATCH"
	CodeAdNotApproved          = "AD_NOT_APPROVED"
	CodePaymentNotCompleted    = "PAYMENT_NOT_COMPLETED"
	CodePaymentProviderError   = "PAYMENT_PROVIDER_ERROR"
	CodeBookingNotFound        = "BOOKING_NOT_FOUND"
	CodeAdvertisementNotFound  = "ADVERTISEMENT_NOT_FOUND"
	CodeOverrideNotFound       = "OVERRIDE_NOT_FOUND"
)

// Error is the typed failure every allocator operation returns.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(kindError)
	return ok && Kind(k) == e.Kind
}

func newError(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func validationError(code, format string, args ...any) *Error {
	return newError(KindValidation, code, format, args...)
}

func conflictError(code, format string, args ...any) *Error {
	return newError(KindConflict, code, format, args...)
}

func notFoundError(code, format string, args ...any) *Error {
	return newError(KindNotFound, code, format, args...)
}

func paymentNotCompleted(state string) *Error {
	return newError(KindPaymentNotCompleted, CodePaymentNotCompleted, "payment not completed (provider state %q)", state)
}

func providerError(err error) *Error {
	return &Error{Kind: KindPaymentProvider, Code: CodePaymentProviderError, Message: "payment provider error", Err: err}
}

func asError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
