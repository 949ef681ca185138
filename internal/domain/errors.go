package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react to it without parsing
// messages: a sold-out zone is not a bad request, and neither is a busy
// gateway.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidationFailed
	KindCapacityExhausted
	KindConflictingState
	KindTransientFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidationFailed:
		return "validation_failed"
	case KindCapacityExhausted:
		return "capacity_exhausted"
	case KindConflictingState:
		return "conflicting_state"
	case KindTransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Error is a classified sentinel. Callers wrap it with context using
// fmt.Errorf("...: %w", ErrX) and match it with errors.Is.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrEventNotFound   = newError(KindNotFound, "event_not_found", "event not found")
	ErrZoneNotFound    = newError(KindNotFound, "zone_not_found", "zone not found")
	ErrTicketNotFound  = newError(KindNotFound, "ticket_not_found", "ticket not found")
	ErrPaymentNotFound = newError(KindNotFound, "payment_not_found", "payment not found")
	ErrUserNotFound    = newError(KindNotFound, "user_not_found", "user not found")
	ErrNoHistory       = newError(KindNotFound, "no_history", "no event history for user and event")

	ErrInvalidInput      = newError(KindValidationFailed, "invalid_input", "invalid input")
	ErrZoneNotInEvent    = newError(KindValidationFailed, "zone_not_in_event", "zone does not belong to event")
	ErrInvalidAmount     = newError(KindValidationFailed, "invalid_amount", "payment amount must equal the ticket price")
	ErrInvalidPrice      = newError(KindValidationFailed, "invalid_price", "price must be greater than zero")
	ErrInvalidCapacity   = newError(KindValidationFailed, "invalid_capacity", "capacity must be at least 1")
	ErrInvalidRating     = newError(KindValidationFailed, "invalid_rating", "rating must be between 1 and 5")
	ErrInvalidTimeWindow = newError(KindValidationFailed, "invalid_time_window", "event end must be after its start")
	ErrDuplicateZoneName = newError(KindValidationFailed, "duplicate_zone_name", "zone name already exists in event")
	ErrDuplicateEmail    = newError(KindValidationFailed, "duplicate_email", "email already registered")
	ErrInvalidQRToken    = newError(KindValidationFailed, "invalid_qr_token", "qr token is invalid")

	ErrCapacityExhausted = newError(KindCapacityExhausted, "capacity_exhausted", "zone capacity exhausted")

	ErrAlreadyPaid         = newError(KindConflictingState, "already_paid", "ticket is already paid")
	ErrAlreadyCancelled    = newError(KindConflictingState, "already_cancelled", "ticket is already cancelled")
	ErrAlreadyUsed         = newError(KindConflictingState, "already_used", "ticket is already used")
	ErrTicketNotPending    = newError(KindConflictingState, "ticket_not_pending", "ticket is not awaiting payment")
	ErrTicketNotPaid       = newError(KindConflictingState, "ticket_not_paid", "ticket is not paid")
	ErrPaymentNotPending   = newError(KindConflictingState, "payment_not_pending", "payment is not pending")
	ErrNotCompleted        = newError(KindConflictingState, "not_completed", "payment is not completed")
	ErrRefundInProgress    = newError(KindConflictingState, "refund_in_progress", "payment refund already in progress")
	ErrActivePaymentExists = newError(KindConflictingState, "active_payment_exists", "ticket already has an active payment")
	ErrEventClosed         = newError(KindConflictingState, "event_closed", "event is finished or cancelled")
	ErrInvalidTransition   = newError(KindConflictingState, "invalid_transition", "status transition not allowed")
	ErrZoneHasTickets      = newError(KindConflictingState, "zone_has_tickets", "zone still has tickets")
	ErrConcurrentUpdate    = newError(KindConflictingState, "concurrent_update", "row was modified concurrently")

	ErrGatewayUnavailable = newError(KindTransientFailure, "gateway_unavailable", "payment gateway unavailable")
	ErrPaymentDeclined    = newError(KindTransientFailure, "payment_declined", "payment declined by gateway")
	ErrLockTimeout        = newError(KindTransientFailure, "lock_timeout", "timed out waiting for zone lock")
	ErrLockUnavailable    = newError(KindTransientFailure, "lock_unavailable", "zone lock backend unavailable")
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// CodeOf returns the machine-readable code of the first classified error in
// err's chain, or "internal_error".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}

// Invalid wraps ErrInvalidInput with a field-level message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
