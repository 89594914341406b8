package auth

import "context"

// Caller is the identity a request acts on behalf of. Guests carry an id of
// the form "guest:<uuid>" and no role.
type Caller struct {
	UserID string
	Email  string
	Name   string
	Role   string
	Guest  bool
}

func (c Caller) IsAdmin() bool {
	return !c.Guest && c.Role == RoleAdmin
}

func (c Caller) Authenticated() bool {
	return c.UserID != ""
}

type callerContextKey struct{}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerContextKey{}).(Caller)
	return caller, ok && caller.Authenticated()
}
