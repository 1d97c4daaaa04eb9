package middleware

import (
	"context"
	"net/http"
	"net/url"

	authservice "caresight/backend/internal/auth/service"
)

// SessionCookieName is the cookie carrying the dashboard's access token.
const SessionCookieName = "caresight_session"

// SessionChecker is the minimal validation needed by the session guard.
type SessionChecker interface {
	ValidateAccess(ctx context.Context, token string) (*authservice.Identity, error)
}

// SessionGuard protects browser-facing dashboard routes. A request without a
// live session is redirected to the login page with the original URI in the
// redirect query parameter, so login can land the user back where they were.
func SessionGuard(validator SessionChecker, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token != "" {
				if ident, err := validator.ValidateAccess(r.Context(), token); err == nil {
					ctx := WithIdentity(r.Context(), ident.UserID, ident.TenantID, ident.SessionID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			target := loginPath + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
		})
	}
}

// sessionToken prefers the session cookie; a bearer header also works so API
// clients can hit dashboard routes.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ExtractBearer(r)
}
