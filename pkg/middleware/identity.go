package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/contextkeys"
	"github.com/platinummonkey/potkeeper/pkg/httputil"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// AdminChecker decides whether a user may use the admin routes.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// ExtractToken returns the token from the Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// IdentityMiddleware resolves the caller from its token. It never rejects a
// request; routes that need a principal add RequirePrincipal.
type IdentityMiddleware struct {
	codec  *auth.TokenCodec
	logger *observability.Logger
}

func NewIdentityMiddleware(codec *auth.TokenCodec, logger *observability.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{codec: codec, logger: logger}
}

// Handler wraps an HTTP handler with identity resolution
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := m.codec.Verify(token)
		if err != nil {
			observability.FromContextOr(r.Context(), m.logger).WithError(err).Debug("ignoring invalid token")
			next.ServeHTTP(w, r)
			return
		}

		// WithPrincipal also records the user id picked up by FromContext.
		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal extracts the resolved identity from the request.
func GetPrincipal(r *http.Request) *auth.Principal {
	p, ok := contextkeys.GetPrincipal(r.Context())
	if !ok {
		return nil
	}
	return p
}

// RequirePrincipal rejects requests without a verified identity.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipal(r) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin creates middleware that admits only administrators
func RequireAdmin(checker AdminChecker, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			ok, err := checker.IsAdmin(r.Context(), principal.UserID)
			if err != nil {
				observability.FromContextOr(r.Context(), logger).
					WithError(err).
					WithField("user_id", principal.UserID).
					Error("admin check failed")
				httputil.WriteInternalError(w)
				return
			}
			if !ok {
				httputil.WriteForbidden(w, "admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
