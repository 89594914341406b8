package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)

func (v *Validator) Validate(seed *SeedFile) error {
	if seed == nil {
		return fmt.Errorf("catalog seed is empty")
	}
	if !currencyPattern.MatchString(seed.Currency) {
		return fmt.Errorf("currency must be a lower-case ISO 4217 code")
	}
	if len(seed.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	ids := make(map[uuid.UUID]bool, len(seed.Products))
	for i, product := range seed.Products {
		id, err := v.validateProduct(product)
		if err != nil {
			return fmt.Errorf("product %d validation failed: %w", i, err)
		}
		if ids[id] {
			return fmt.Errorf("duplicate product id: %s", id)
		}
		ids[id] = true
	}

	return nil
}

func (v *Validator) validateProduct(product ProductSeed) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(product.ID))
	if err != nil {
		return uuid.Nil, fmt.Errorf("product id must be a UUID: %w", err)
	}
	if strings.TrimSpace(product.Title) == "" {
		return uuid.Nil, fmt.Errorf("product title is required")
	}
	if product.Price <= 0 {
		return uuid.Nil, fmt.Errorf("product price must be positive")
	}
	if err := validateVariants("size", product.Sizes); err != nil {
		return uuid.Nil, err
	}
	if err := validateVariants("color", product.Colors); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func validateVariants(kind string, values []string) error {
	seen := make(map[string]bool, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return fmt.Errorf("%s values cannot be blank", kind)
		}
		if seen[trimmed] {
			return fmt.Errorf("duplicate %s: %s", kind, trimmed)
		}
		seen[trimmed] = true
	}
	return nil
}
