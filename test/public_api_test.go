package test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	leadAuth "github.com/MrEthical07/leadAuth"
	"github.com/MrEthical07/leadAuth/middleware"
)

// Guards the public API shape consumers compile against.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = leadAuth.New
	_ = leadAuth.DefaultConfig
	_ = leadAuth.HighSecurityConfig
	_ = leadAuth.LoadConfigFile

	var _ *leadAuth.Engine
	var _ leadAuth.Config
	var _ leadAuth.Principal
	var _ leadAuth.TokenPair
	var _ leadAuth.ChainInfo
	var _ leadAuth.AuditSink = leadAuth.NoOpSink{}
	var _ leadAuth.AuditSink = leadAuth.NewSlogSink(slog.Default())

	var _ error = leadAuth.ErrMalformed
	var _ error = leadAuth.ErrSignatureInvalid
	var _ error = leadAuth.ErrExpired
	var _ error = leadAuth.ErrBindingMismatch
	var _ error = leadAuth.ErrRevoked
	var _ error = leadAuth.ErrChainNotFound
	var _ error = leadAuth.ErrReuseDetected
	var _ error = leadAuth.ErrUnknownRole
	var _ error = leadAuth.ErrPermissionDenied
	var _ error = leadAuth.ErrServiceUnavailable

	var _ func(middleware.Verifier, middleware.FingerprintFunc) func(http.Handler) http.Handler = middleware.Guard
	var _ func(leadAuth.Role) func(http.Handler) http.Handler = middleware.RequireRole
	var _ middleware.Verifier = (*leadAuth.Engine)(nil)

	var _ func(*leadAuth.Engine, context.Context, leadAuth.Principal, string) (*leadAuth.TokenPair, error) = (*leadAuth.Engine).Issue
	var _ func(*leadAuth.Engine, context.Context, string, string) (*leadAuth.Principal, error) = (*leadAuth.Engine).Verify
	var _ func(*leadAuth.Engine, context.Context, string, string) (*leadAuth.TokenPair, error) = (*leadAuth.Engine).Rotate
	var _ func(*leadAuth.Engine, context.Context, string, string) error = (*leadAuth.Engine).Logout
	var _ func(*leadAuth.Engine, context.Context, string) (int, error) = (*leadAuth.Engine).LogoutAll
	var _ func(*leadAuth.Engine, context.Context, string, string) error = (*leadAuth.Engine).RevokeAccessToken
	var _ func(*leadAuth.Engine, leadAuth.Role, leadAuth.Role) bool = (*leadAuth.Engine).HasPermission
	var _ func(*leadAuth.Engine, leadAuth.Role, string, string) bool = (*leadAuth.Engine).CanAccessOrganization
}
