package contract

import (
	"errors"
	"fmt"
)

var (
	ErrClassification    = errors.New("classification failed")
	ErrSchemaViolation   = errors.New("model response violates schema")
	ErrRuleViolation     = errors.New("business rule violation")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConcurrentConflict = errors.New("concurrent commit conflict")
	ErrTransientFailure  = errors.New("transient tool failure")
	ErrPermanentFailure  = errors.New("permanent tool failure")
	ErrValidation        = errors.New("validation failed")
	ErrToolNotAllowed    = errors.New("tool not allowed for handler")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrUnknownIntent     = errors.New("no handler chain for intent")
	ErrRecordNotFound    = errors.New("workflow record not found")
	ErrLedgerInconsistent = errors.New("ledger inconsistency detected")
)

// RuleViolationError carries both sides of a rule rejection. Error()
// exposes only the internal reason; callers building outward results
// must use CustomerMessage.
type RuleViolationError struct {
	RuleID          string
	CustomerMessage string
	InternalReason  string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("rule %s rejected request: %s", e.RuleID, e.InternalReason)
}

func (e *RuleViolationError) Unwrap() error {
	return ErrRuleViolation
}
