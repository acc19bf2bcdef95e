package ctxutil

import "context"

type ownerKey struct{}

// WithOwner records the authenticated device/user that issued the request.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// Owner returns the authenticated owner, or "" when the request is anonymous.
func Owner(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ownerKey{}).(string)
	return v
}
