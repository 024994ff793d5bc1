package gateway

import (
	"context"
	"errors"
	"net/http"

	"stevedore/internal/store"
	"stevedore/pkg/logging"
)

type userContextKey struct{}

// WithUser returns a context carrying the resolved user.
func WithUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFrom returns the authenticated user attached to the request context,
// or nil for anonymous requests.
func UserFrom(ctx context.Context) *store.User {
	user, _ := ctx.Value(userContextKey{}).(*store.User)
	return user
}

// IdentityMiddleware resolves the trusted identity header the fronting
// authenticator sets and attaches the matching user to the request context.
// Requests without the header, or naming an unknown user, stay anonymous;
// so do requests when the lookup itself fails.
func IdentityMiddleware(st *store.Store, header string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.Header.Get(header)
		if username == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := st.GetUserByUsername(r.Context(), username)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logging.Warn(gatewaySubsystem, "Identity lookup for %q failed: %v", username, err)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}
