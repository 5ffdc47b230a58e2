package cart

import (
	"context"
	"errors"
)

// ErrNoProvider reports that cart code ran without a store bound to its context.
var ErrNoProvider = errors.New("cart store used outside of a cart provider")

type storeKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the store bound by NewContext, if any.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	return s, ok && s != nil
}

// MustFromContext is FromContext for callers that require a provider.
// It panics with ErrNoProvider when none is bound.
func MustFromContext(ctx context.Context) *Store {
	s, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoProvider)
	}
	return s
}
