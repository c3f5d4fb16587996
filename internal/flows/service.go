package flows

import (
	"context"

	"github.com/MrEthical07/leadAuth/chain"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Verify.Codec != nil && s.deps.Rotate.Chains != nil
}

func (s Service) Issue(ctx context.Context, in IssueInput) IssueResult {
	return RunIssue(ctx, in, s.deps.Issue)
}

func (s Service) Verify(ctx context.Context, accessToken, fingerprint string) VerifyResult {
	return RunVerify(ctx, accessToken, fingerprint, s.deps.Verify)
}

func (s Service) Rotate(ctx context.Context, refreshToken, fingerprint string) RotateResult {
	return RunRotate(ctx, refreshToken, fingerprint, s.deps.Rotate)
}

func (s Service) Logout(ctx context.Context, accessToken, fingerprint string) LogoutResult {
	return RunLogout(ctx, accessToken, fingerprint, s.deps.Sessions)
}

func (s Service) LogoutAll(ctx context.Context, subjectID string) (int, error) {
	return RunLogoutAll(ctx, subjectID, s.deps.Sessions)
}

func (s Service) RevokeAccessToken(ctx context.Context, accessToken, reason string) LogoutResult {
	return RunRevokeAccessToken(ctx, accessToken, reason, s.deps.Sessions)
}

func (s Service) ListChains(ctx context.Context, subjectID string) ([]*chain.State, error) {
	return RunListChains(ctx, subjectID, s.deps.Sessions)
}
