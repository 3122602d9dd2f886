package namespace

import "context"

type callerKey struct{}

// DefaultCaller is recorded as owner when the context carries no identity.
const DefaultCaller = "anonymous"

// WithCaller returns a context carrying the caller identity recorded as the
// owner of nodes created under it. Identities are recorded, never checked.
func WithCaller(ctx context.Context, user string) context.Context {
	if user == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, user)
}

// CallerFrom returns the caller identity carried by ctx, or DefaultCaller.
func CallerFrom(ctx context.Context) string {
	if user, ok := ctx.Value(callerKey{}).(string); ok {
		return user
	}
	return DefaultCaller
}
