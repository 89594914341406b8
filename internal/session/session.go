// Package session tracks anonymous shoppers through a cookie so guests can
// check out and later list their own orders.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	cookieName = "storefront_guest"
	ttl        = 30 * 24 * time.Hour
)

var ErrNoSession = errors.New("no guest session")

// Data is the state kept for a guest.
type Data struct {
	GuestID   string `json:"guest_id"`
	Email     string `json:"email,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// OwnerID is the value stored as an order's user id for guest checkouts.
func (d *Data) OwnerID() string {
	if d == nil || d.GuestID == "" {
		return ""
	}
	return "guest:" + d.GuestID
}

// Store defines the interface for session storage
type Store interface {
	Get(ctx context.Context, key string) (*Data, bool)
	Set(ctx context.Context, key string, data *Data, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

// Manager issues and resolves guest sessions.
type Manager struct {
	store  Store
	secure bool
	now    func() time.Time
}

func NewManager(store Store, secure bool) *Manager {
	return &Manager{
		store:  store,
		secure: secure,
		now:    time.Now,
	}
}

func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}

// GetSession resolves the guest session referenced by the request cookie.
func (m *Manager) GetSession(ctx context.Context, r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	if ctx == nil {
		ctx = r.Context()
	}

	data, ok := m.store.Get(ctx, cookie.Value)
	if !ok {
		return nil, ErrNoSession
	}
	if m.now().Unix()-data.CreatedAt > int64(ttl.Seconds()) {
		m.store.Delete(ctx, cookie.Value)
		return nil, fmt.Errorf("%w: expired", ErrNoSession)
	}
	return data, nil
}

// EnsureGuest returns the caller's guest session, creating one and setting the
// cookie when none exists.
func (m *Manager) EnsureGuest(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Data, error) {
	if data, err := m.GetSession(ctx, r); err == nil {
		return data, nil
	}
	if ctx == nil {
		ctx = r.Context()
	}

	sessionID := uuid.NewString()
	data := &Data{
		GuestID:   uuid.NewString(),
		CreatedAt: m.now().Unix(),
	}
	m.store.Set(ctx, sessionID, data, ttl)

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return cloneData(data), nil
}

// Remember records the guest's contact email after a checkout.
func (m *Manager) Remember(ctx context.Context, r *http.Request, email string) error {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ErrNoSession
	}
	data, err := m.GetSession(ctx, r)
	if err != nil {
		return err
	}
	updated := cloneData(data)
	updated.Email = email
	m.store.Set(ctx, cookie.Value, updated, ttl)
	return nil
}

func cloneData(data *Data) *Data {
	if data == nil {
		return nil
	}
	cloned := *data
	return &cloned
}
