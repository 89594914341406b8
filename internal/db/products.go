package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// GetByIDs returns the products that exist among ids, keyed by id.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error) {
	products := make(map[uuid.UUID]*Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, price, sizes, colors, active, updated_at
		FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var product Product
		if err := rows.Scan(&product.ID, &product.Title, &product.Price, &product.Sizes,
			&product.Colors, &product.Active, &product.UpdatedAt); err != nil {
			return nil, err
		}
		products[product.ID] = &product
	}
	return products, rows.Err()
}

// Upsert writes a catalog entry. Existing orders are unaffected because they
// carry their own item snapshot.
func (s *ProductStore) Upsert(ctx context.Context, product Product) error {
	sizes := product.Sizes
	if sizes == nil {
		sizes = []string{}
	}
	colors := product.Colors
	if colors == nil {
		colors = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, title, price, sizes, colors, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, price = EXCLUDED.price, sizes = EXCLUDED.sizes,
		    colors = EXCLUDED.colors, active = EXCLUDED.active, updated_at = NOW()
	`, product.ID, product.Title, product.Price, sizes, colors, product.Active)
	return err
}
