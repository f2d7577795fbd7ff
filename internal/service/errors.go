package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go-customs-ledger/pkg/validator"
)

// Ledger errors. Every one of them aborts the surrounding transaction.
var (
	ErrValidation                 = errors.New("validation failed")
	ErrDocumentNotFound           = errors.New("document not found")
	ErrProductNotFound            = errors.New("product not found")
	ErrSourceNotFound             = errors.New("source item not found")
	ErrInvalidSource              = errors.New("source item cannot be allocated")
	ErrQuantityMismatch           = errors.New("allocated quantity does not match item quantity")
	ErrPackageQuantityMismatch    = errors.New("allocated package quantity does not match item package quantity")
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrInsufficientPackageBalance = errors.New("insufficient package balance")
	ErrSourceInUse                = errors.New("document is referenced by OUT allocations")
	ErrInvalidCredentials         = errors.New("invalid username or password")
)

// LedgerError wraps a sentinel with the details of the failing line.
type LedgerError struct {
	Err     error
	Details string
}

func (e *LedgerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Details)
	}
	return e.Err.Error()
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func ledgerErr(err error, format string, args ...any) *LedgerError {
	return &LedgerError{Err: err, Details: fmt.Sprintf(format, args...)}
}

// ValidationError carries messages keyed by JSON field path.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, strings.Join(e.Fields[k], ", ")))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func newValidationError(errs []*validator.ErrorResponse) *ValidationError {
	return &ValidationError{Fields: validator.FieldErrors(errs)}
}

// reason is the metrics label for a rejected mutation.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDocumentNotFound):
		return "document_not_found"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrSourceNotFound):
		return "source_not_found"
	case errors.Is(err, ErrInvalidSource):
		return "invalid_source"
	case errors.Is(err, ErrQuantityMismatch), errors.Is(err, ErrPackageQuantityMismatch):
		return "quantity_mismatch"
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientPackageBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrSourceInUse):
		return "source_in_use"
	default:
		return "internal"
	}
}
