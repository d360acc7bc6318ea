package auth

import (
	"context"
	"net/http"
	"strings"
)

// CookieName is the cookie the browser client stores its token in.
const CookieName = "access_token"

type identityKey struct{}

// Identity is the authenticated caller.
type Identity struct {
	Email     string
	FirstName string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller identity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Email != ""
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// OptionalUser attaches the identity when a valid token is present and
// otherwise lets the request through anonymously.
func (m *TokenManager) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := TokenFromRequest(r); raw != "" {
			if claims, err := m.Validate(raw); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), Identity{Email: claims.Email(), FirstName: claims.FirstName}))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without a valid token using unauthorized.
func (m *TokenManager) RequireUser(unauthorized http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.OptionalUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// SetCookie stores token in an HTTP-only cookie.
func (m *TokenManager) SetCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
