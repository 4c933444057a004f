package service

import (
	"errors"
	"fmt"

	"bizledger/internal/repository"

	"gorm.io/gorm"
)

// Validation errors: the request is malformed, nothing was changed.
var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidPaymentAmount  = errors.New("payment amount must be greater than zero")
	ErrPaymentExceedsBalance = errors.New("payment amount exceeds remaining balance")
	ErrCheckNumberRequired   = errors.New("check number is required for check payments")
	ErrNotAnInvoice          = errors.New("payments can only be recorded against invoices")
	ErrCounterpartyRequired  = errors.New("counterparty is required")
	ErrDepotRequired         = errors.New("depot is required")
	ErrReturnNotAllowed      = errors.New("returns can only be created from deliveries or invoices")
)

// Invariant violations: the request is well formed but would break the ledger.
var (
	ErrAlreadyTransformed  = errors.New("document already transformed")
	ErrAlreadyReturned     = errors.New("shipment already returned")
	ErrTerminalType        = errors.New("document type cannot be transformed further")
	ErrDocumentReferenced  = errors.New("document is referenced by another document and cannot be deleted")
	ErrDocumentHasPayments = errors.New("document has recorded payments and cannot be deleted")
	ErrDuplicateCode       = errors.New("document code already exists")
	ErrInvalidTransition   = errors.New("status transition not allowed")
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotFound          = errors.New("not found")
)

// ValidationError carries the offending field. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvariant
	KindCapacity
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvariant:
		return "invariant"
	case KindCapacity:
		return "capacity"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrInvalidPaymentAmount, KindValidation},
	{ErrPaymentExceedsBalance, KindValidation},
	{ErrCheckNumberRequired, KindValidation},
	{ErrNotAnInvoice, KindValidation},
	{ErrCounterpartyRequired, KindValidation},
	{ErrDepotRequired, KindValidation},
	{ErrReturnNotAllowed, KindValidation},
	{ErrAlreadyTransformed, KindInvariant},
	{ErrAlreadyReturned, KindInvariant},
	{ErrDocumentHasPayments, KindInvariant},
	{ErrTerminalType, KindInvariant},
	{ErrDocumentReferenced, KindInvariant},
	{ErrDuplicateCode, KindInvariant},
	{ErrInvalidTransition, KindInvariant},
	{ErrInsufficientStock, KindCapacity},
	{ErrNotFound, KindNotFound},
	{gorm.ErrRecordNotFound, KindNotFound},
	{repository.ErrRevisionConflict, KindConflict},
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("database error: %w", err)
}
