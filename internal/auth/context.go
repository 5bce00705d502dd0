package auth

import "context"

type claimsContextKey struct{}

// WithClaims returns a child context carrying the parsed claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// FromContext extracts claims previously attached by WithClaims or the
// middleware. The second return is false for unauthenticated contexts.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}
