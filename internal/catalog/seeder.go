package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/storefrontapp/storefront/internal/logging"
	"github.com/storefrontapp/storefront/internal/models"
)

type productUpserter interface {
	Upsert(ctx context.Context, product models.Product) error
}

// Seeder writes a validated seed file into the product store.
type Seeder struct {
	store     productUpserter
	parser    *Parser
	validator *Validator
	logger    *slog.Logger
}

func NewSeeder(store productUpserter, logger *slog.Logger) *Seeder {
	return &Seeder{
		store:     store,
		parser:    NewParser(),
		validator: NewValidator(),
		logger:    logger,
	}
}

// SeedFile parses, validates and upserts the catalog at path.
func (s *Seeder) SeedFile(ctx context.Context, path string) (int, error) {
	seed, err := s.parser.ParseFile(path)
	if err != nil {
		return 0, err
	}
	return s.Seed(ctx, seed)
}

func (s *Seeder) Seed(ctx context.Context, seed *SeedFile) (int, error) {
	if err := s.validator.Validate(seed); err != nil {
		return 0, fmt.Errorf("invalid catalog seed: %w", err)
	}

	for _, product := range ToProducts(seed) {
		if err := s.store.Upsert(ctx, product); err != nil {
			return 0, fmt.Errorf("failed to upsert product %s: %w", product.ID, err)
		}
	}

	logging.FromContext(ctx, s.logger).Info("catalog seeded", "products", len(seed.Products))
	return len(seed.Products), nil
}

// ToProducts converts a validated seed into catalog products.
func ToProducts(seed *SeedFile) []models.Product {
	products := make([]models.Product, 0, len(seed.Products))
	for _, p := range seed.Products {
		products = append(products, models.Product{
			ID:     uuid.MustParse(strings.TrimSpace(p.ID)),
			Title:  strings.TrimSpace(p.Title),
			Price:  p.Price,
			Sizes:  trimAll(p.Sizes),
			Colors: trimAll(p.Colors),
			Active: p.IsActive(),
		})
	}
	return products
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, strings.TrimSpace(value))
	}
	return out
}
