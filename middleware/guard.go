package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	leadAuth "github.com/MrEthical07/leadAuth"
)

// DefaultFingerprintHeader carries the client-computed device fingerprint.
const DefaultFingerprintHeader = "X-Device-Fingerprint"

// Verifier is the part of *leadAuth.Engine the guard needs.
type Verifier interface {
	Verify(ctx context.Context, accessToken, fingerprint string) (*leadAuth.Principal, error)
}

// FingerprintFunc extracts the device fingerprint from a request.
type FingerprintFunc func(r *http.Request) string

// HeaderFingerprint reads the fingerprint from the named header.
func HeaderFingerprint(name string) FingerprintFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// Guard verifies the bearer token against the request's device fingerprint
// and stores the principal with leadAuth.WithPrincipal. Token problems
// answer 401; an unreachable store answers 503 so clients retry instead of
// logging out.
func Guard(engine Verifier, fingerprint FingerprintFunc) func(http.Handler) http.Handler {
	if fingerprint == nil {
		fingerprint = HeaderFingerprint(DefaultFingerprintHeader)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := leadAuth.WithClientIP(r.Context(), clientIP(r))
			p, err := engine.Verify(ctx, token, fingerprint(r))
			if err != nil {
				if errors.Is(err, leadAuth.ErrServiceUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(leadAuth.WithPrincipal(ctx, p)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
