// Package requestctx carries caller identity and locale through request
// contexts.
package requestctx

import "context"

type userIDContextKey struct{}

type localeContextKey struct{}

// WithUserID stores a user identifier in context. An empty id marks a guest.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the user identifier stored in context.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDContextKey{}).(string)
	return value
}

// IsGuest reports whether the context carries no user identity.
func IsGuest(ctx context.Context) bool {
	return UserIDFromContext(ctx) == ""
}

// WithLocale stores the negotiated message locale in context.
func WithLocale(ctx context.Context, locale string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, localeContextKey{}, locale)
}

// LocaleFromContext returns the stored locale or fallback.
func LocaleFromContext(ctx context.Context, fallback string) string {
	if ctx == nil {
		return fallback
	}
	if value, _ := ctx.Value(localeContextKey{}).(string); value != "" {
		return value
	}
	return fallback
}
