package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storefrontapp/storefront/internal/models"
)

const sampleSeed = `
currency: inr
products:
  - id: 6f1c1d5e-7a53-4c1e-9a55-0c1b7f3f7a01
    title: Block-print Kurta
    price: 40000
    sizes: [S, M, L]
    colors: [indigo, rust]
  - id: 6f1c1d5e-7a53-4c1e-9a55-0c1b7f3f7a02
    title: Silk Scarf
    price: 20000
    active: false
`

type fakeUpserter struct {
	products []models.Product
	err      error
}

func (f *fakeUpserter) Upsert(_ context.Context, product models.Product) error {
	if f.err != nil {
		return f.err
	}
	f.products = append(f.products, product)
	return nil
}

func TestParserParse(t *testing.T) {
	t.Parallel()

	seed, err := NewParser().Parse([]byte(sampleSeed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seed.Currency != "inr" || len(seed.Products) != 2 {
		t.Fatalf("unexpected seed: %+v", seed)
	}
	if !seed.Products[0].IsActive() || seed.Products[1].IsActive() {
		t.Fatal("expected active to default true and honour explicit false")
	}

	if _, err := NewParser().Parse([]byte("products: [")); err == nil {
		t.Fatal("expected YAML error")
	}
}

func TestValidatorValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "valid", content: sampleSeed},
		{name: "bad currency", content: "currency: INR\nproducts: [{id: 6f1c1d5e-7a53-4c1e-9a55-0c1b7f3f7a01, title: A, price: 1}]", wantErr: "currency"},
		{name: "no products", content: "currency: inr\nproducts: []", wantErr: "at least one product"},
		{name: "bad id", content: "currency: inr\nproducts: [{id: nope, title: A, price: 1}]", wantErr: "UUID"},
		{name: "zero price", content: "currency: inr\nproducts: [{id: 6f1c1d5e-7a53-4c1e-9a55-0c1b7f3f7a01, title: A, price: 0}]", wantErr: "price"},
		{name: "duplicate size", content: "currency: inr\nproducts: [{id: 6f1c1d5e-7a53-4c1e-9a55-0c1b7f3f7a01, title: A, price: 1, sizes: [M, M]}]", wantErr: "duplicate size"},
		{
			name: "duplicate id",
			content: "currency: inr\nproducts: [{id: 6f1c1d5e-7a53-4c1e-9a55-0c1b7f3f7a01, title: A, price: 1}, " +
				"{id: 6f1c1d5e-7a53-4c1e-9a55-0c1b7f3f7a01, title: B, price: 2}]",
			wantErr: "duplicate product id",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			seed, err := NewParser().Parse([]byte(tt.content))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			err = NewValidator().Validate(seed)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSeederSeedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleSeed), 0o600); err != nil {
		t.Fatalf("write seed failed: %v", err)
	}

	store := &fakeUpserter{}
	count, err := NewSeeder(store, nil).SeedFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 || len(store.products) != 2 {
		t.Fatalf("expected two products, got %d/%d", count, len(store.products))
	}
	kurta := store.products[0]
	if kurta.Title != "Block-print Kurta" || kurta.Price != 40000 || !kurta.HasSize("M") || kurta.HasSize("XL") {
		t.Fatalf("unexpected product: %+v", kurta)
	}
	if store.products[1].Active {
		t.Fatal("expected scarf to be inactive")
	}
}

func TestSeederPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	seed, err := NewParser().Parse([]byte(sampleSeed))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	storeErr := errors.New("db down")
	if _, err := NewSeeder(&fakeUpserter{err: storeErr}, nil).Seed(context.Background(), seed); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}
