package chain

import (
	"context"
	"time"
)

// Clock supplies creation timestamps
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now returns f()
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Identity supplies the acting user of an operation
type Identity interface {
	CurrentUser(ctx context.Context) (string, bool)
}

type userKey struct{}

// WithUser returns a context carrying the acting user
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the acting user stored by WithUser
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey{}).(string)
	return user, ok && user != ""
}

// ContextIdentity reads the acting user placed by WithUser
type ContextIdentity struct{}

// CurrentUser implements Identity
func (ContextIdentity) CurrentUser(ctx context.Context) (string, bool) {
	return UserFromContext(ctx)
}
