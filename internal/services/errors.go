package services

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/storefrontapp/storefront/internal/db"
	"github.com/storefrontapp/storefront/internal/payment"
)

var (
	ErrValidation         = db.ErrValidation
	ErrNotFound           = db.ErrNotFound
	ErrInvalidTransition  = db.ErrInvalidTransition
	ErrGatewayUnavailable = payment.ErrGatewayUnavailable
	ErrGatewayRejected    = payment.ErrGatewayRejected
	ErrDuplicateReceipt   = payment.ErrDuplicateReceipt
	ErrPaymentIncomplete  = payment.ErrPaymentIncomplete
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyPaid        = errors.New("order is already paid")
)

// ValidationError carries field-level messages and matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Fields[key]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldError(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}
