package middleware

import (
	"net/http"

	leadAuth "github.com/MrEthical07/leadAuth"
	"github.com/go-chi/chi/v5"
)

// RequireRole admits principals ranked at or above min. It must run after
// Guard; requests without a principal answer 401.
func RequireRole(min leadAuth.Role) func(http.Handler) http.Handler {
	return require(func(p *leadAuth.Principal, _ *http.Request) bool {
		return p.HasRole(min)
	})
}

// RequireCapability admits principals carrying capability.
func RequireCapability(capability string) func(http.Handler) http.Handler {
	return require(func(p *leadAuth.Principal, _ *http.Request) bool {
		return p.Can(capability)
	})
}

// RequireOrganization admits principals that may act on the organization
// named by target(r). Admins reach every organization.
func RequireOrganization(target func(r *http.Request) string) func(http.Handler) http.Handler {
	return require(func(p *leadAuth.Principal, r *http.Request) bool {
		return p.CanAccessOrganization(target(r))
	})
}

// OrganizationURLParam reads the target organization from a chi route
// parameter, for use with RequireOrganization.
func OrganizationURLParam(name string) func(r *http.Request) string {
	return func(r *http.Request) string {
		return chi.URLParam(r, name)
	}
}

func require(allowed func(*leadAuth.Principal, *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := leadAuth.PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !allowed(p, r) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
