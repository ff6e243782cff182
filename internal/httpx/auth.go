package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/lastcrate/surplus-orders/internal/session"
)

type sessionKey struct{}

// SessionFrom returns the authenticated session placed by requireRole.
func SessionFrom(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(session.Session)
	return s, ok
}

// requireRole authenticates the bearer token against the session store and
// checks the actor's role. Admin passes every check.
func requireRole(store *session.Store, roles ...session.Role) func(http.Handler) http.Handler {
	allowed := make(map[session.Role]bool, len(roles)+1)
	for _, r := range roles {
		allowed[r] = true
	}
	allowed[session.RoleAdmin] = true

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || token == r.Header.Get("Authorization") {
				writeErr(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			sess, ok := store.Get(token)
			if !ok {
				writeErr(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if !allowed[sess.Role] {
				writeErr(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
		})
	}
}
