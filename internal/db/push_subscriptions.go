package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefrontapp/storefront/internal/crypto"
)

// PushSubscriptionStore keeps admin browser subscriptions. The auth secret is
// sealed against the endpoint before it is written.
type PushSubscriptionStore struct {
	pool   *pgxpool.Pool
	sealer crypto.Sealer
}

func NewPushSubscriptionStore(pool *pgxpool.Pool, sealer crypto.Sealer) *PushSubscriptionStore {
	return &PushSubscriptionStore{pool: pool, sealer: sealer}
}

// Add registers a subscription. Re-subscribing the same endpoint replaces its
// keys and owner.
func (s *PushSubscriptionStore) Add(ctx context.Context, sub *PushSubscription) error {
	if sub == nil || sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
		return fmt.Errorf("%w: endpoint and keys are required", ErrValidation)
	}

	sealed, err := s.sealer.Seal(sub.Auth, sub.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to seal push auth secret: %w", err)
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth_sealed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth_sealed = EXCLUDED.auth_sealed
		RETURNING id, created_at
	`, sub.UserID, sub.Endpoint, sub.P256dh, sealed).Scan(&sub.ID, &sub.CreatedAt)
}

// Remove deletes a subscription owned by userID.
func (s *PushSubscriptionStore) Remove(ctx context.Context, userID, endpoint string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveByEndpoint drops a subscription the push service reported as gone.
func (s *PushSubscriptionStore) RemoveByEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

// List returns every subscription with its auth secret opened. Rows that fail
// to open are skipped and reported in the joined error.
func (s *PushSubscriptionStore) List(ctx context.Context) ([]PushSubscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth_sealed, created_at
		FROM push_subscriptions ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		subs    []PushSubscription
		openErr error
	)
	for rows.Next() {
		var (
			sub    PushSubscription
			sealed string
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sealed, &sub.CreatedAt); err != nil {
			return nil, err
		}
		auth, err := s.sealer.Open(sealed, sub.Endpoint)
		if err != nil {
			openErr = errors.Join(openErr, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		sub.Auth = auth
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, openErr
}
