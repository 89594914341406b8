package notify

import (
	"context"

	"github.com/storefrontapp/storefront/internal/models"
)

type subscriptionStore interface {
	Add(ctx context.Context, sub *models.PushSubscription) error
	Remove(ctx context.Context, userID, endpoint string) error
	RemoveByEndpoint(ctx context.Context, endpoint string) error
	List(ctx context.Context) ([]models.PushSubscription, error)
}

// Registry is the process-wide set of admin notification targets: persisted
// push subscriptions and live sockets.
type Registry struct {
	store subscriptionStore
	hub   *Hub
}

func NewRegistry(store subscriptionStore, hub *Hub) *Registry {
	return &Registry{store: store, hub: hub}
}

func (r *Registry) Hub() *Hub {
	return r.hub
}

func (r *Registry) Subscribe(ctx context.Context, sub *models.PushSubscription) error {
	return r.store.Add(ctx, sub)
}

func (r *Registry) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	return r.store.Remove(ctx, userID, endpoint)
}

func (r *Registry) Subscriptions(ctx context.Context) ([]models.PushSubscription, error) {
	return r.store.List(ctx)
}

// Forget drops an endpoint the push service no longer accepts.
func (r *Registry) Forget(ctx context.Context, endpoint string) error {
	return r.store.RemoveByEndpoint(ctx, endpoint)
}
