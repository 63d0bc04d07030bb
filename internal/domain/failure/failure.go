// Package failure defines the typed business failures returned by the ledger.
package failure

import (
	"errors"
	"fmt"
)

// Kind groups failures so callers can decide how to react (retry, fix input, re-authenticate).
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindTerminal     Kind = "terminal"
	KindInternal     Kind = "internal"
)

// Error is an expected business outcome. Two Errors match under errors.Is when their codes match,
// so a sentinel with extra detail attached still compares equal to the bare sentinel.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Withf returns a copy of e with a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// KindOf classifies err. Anything that is not a *Error is an infrastructure failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsBusiness reports whether err is an expected business outcome rather than an infrastructure failure.
func IsBusiness(err error) bool {
	k := KindOf(err)
	return k != "" && k != KindInternal
}

// Internal wraps an unexpected infrastructure error.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	if IsBusiness(err) {
		return err
	}
	return ErrInternal.Wrap(err)
}

var ErrInternal = New(KindInternal, "internal", "internal error")

// Authorization.
var (
	ErrUnauthorized   = New(KindUnauthorized, "unauthorized", "operation requires an administrator")
	ErrNotOwner       = New(KindUnauthorized, "not_owner", "record belongs to another member")
	ErrMemberNotFound = New(KindNotFound, "member_not_found", "member not found")
	ErrMemberExists   = New(KindConflict, "member_exists", "member already registered")
)

// Cycle registry.
var (
	ErrCycleNotFound     = New(KindNotFound, "cycle_not_found", "cycle not found")
	ErrInvalidRange      = New(KindValidation, "invalid_range", "invalid cycle fields")
	ErrCapacityConflict  = New(KindConflict, "capacity_conflict", "total slots below current usage")
	ErrInvalidTransition = New(KindConflict, "invalid_transition", "cycle status transition not allowed")
)

// Participation ledger.
var (
	ErrAlreadyRegistered     = New(KindConflict, "already_registered", "already registered for this cycle")
	ErrDeadlinePassed        = New(KindValidation, "deadline_passed", "registration deadline has passed")
	ErrCycleClosed           = New(KindConflict, "cycle_closed", "cycle is closed")
	ErrNoSlotsAvailable      = New(KindConflict, "no_slots_available", "no slots available")
	ErrInvalidBankDetails    = New(KindValidation, "invalid_bank_details", "invalid bank details")
	ErrUnknownTier           = New(KindValidation, "unknown_tier", "unknown contribution tier")
	ErrParticipationNotFound = New(KindNotFound, "participation_not_found", "participation not found")
	ErrOptOutNotAllowed      = New(KindTerminal, "opt_out_not_allowed", "cannot opt out after picking a number")
)

// Slot allocator.
var (
	ErrReservedNumber = New(KindValidation, "reserved_number", "number is reserved")
	ErrNotRegistered  = New(KindNotFound, "not_registered", "no active participation")
	ErrPickingNotOpen = New(KindValidation, "picking_not_open", "number picking has not opened yet")
	ErrAlreadyPicked  = New(KindTerminal, "already_picked", "a number has already been picked")
	ErrOutOfRange     = New(KindValidation, "out_of_range", "number is out of range")
	ErrSlotTaken      = New(KindConflict, "slot_taken", "number is already taken")
)

// Payments.
var (
	ErrPaymentNotFound = New(KindNotFound, "payment_not_found", "payment not found")
	ErrAlreadyPaid     = New(KindTerminal, "already_paid", "payment already settled")
	ErrInvalidProof    = New(KindValidation, "invalid_proof", "invalid proof of payment")
	ErrInvalidAmount   = New(KindValidation, "invalid_amount", "amount must be positive")
)

// Payouts.
var (
	ErrPayoutNotFound   = New(KindNotFound, "payout_not_found", "payout not found")
	ErrAlreadyProcessed = New(KindTerminal, "already_processed", "payout already processed")
	ErrMissingReference = New(KindValidation, "missing_reference", "transfer reference is required")
)
