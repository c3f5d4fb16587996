package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/leadAuth/chain"
	"github.com/MrEthical07/leadAuth/internal"
	"github.com/MrEthical07/leadAuth/jwt"
	"github.com/MrEthical07/leadAuth/permission"
	"github.com/MrEthical07/leadAuth/store"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureFingerprint
	IssueFailurePrincipal
	IssueFailureUnknownRole
	IssueFailureCapability
	IssueFailureGenerate
	IssueFailureSign
	IssueFailureStore
)

const maxIDLength = 255

// IssueInput is an authenticated principal plus the device it logged in from.
type IssueInput struct {
	SubjectID      string
	OrganizationID string
	Role           string
	Permissions    []string
	Fingerprint    string
}

// IssueResult carries either the issued pair or failure metadata.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error

	SubjectID        string
	OrganizationID   string
	Role             string
	Permissions      []string
	ChainID          string
	TokenID          string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Replaced         *chain.State
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Codec        Codec
	Chains       ChainStore
	Revocations  RevocationStore
	Fingerprints Fingerprinter
	Capabilities *permission.Registry
	Roles        *permission.RoleManager
	Lifetimes    Lifetimes
	Now          func() time.Time
	Warn         func(string, ...any)
}

// RunIssue mints an access/refresh pair for an authenticated principal and
// starts a refresh chain for its device. Both tokens are signed before any
// state is written.
func RunIssue(ctx context.Context, in IssueInput, deps IssueDeps) IssueResult {
	if in.Fingerprint == "" {
		return IssueResult{Failure: IssueFailureFingerprint, Err: errors.New("fingerprint required"), SubjectID: in.SubjectID}
	}
	if err := validPrincipal(in); err != nil {
		return IssueResult{Failure: IssueFailurePrincipal, Err: err, SubjectID: in.SubjectID}
	}

	role, err := permission.ParseRole(in.Role)
	if err != nil {
		return IssueResult{Failure: IssueFailureUnknownRole, Err: err, SubjectID: in.SubjectID}
	}

	perms := in.Permissions
	if deps.Roles != nil {
		perms = deps.Roles.Expand(role, perms)
	}
	if deps.Capabilities != nil {
		if err := deps.Capabilities.Validate(perms); err != nil {
			return IssueResult{Failure: IssueFailureCapability, Err: err, SubjectID: in.SubjectID}
		}
	}

	now := deps.Now()
	tokenID, err := internal.NewTokenID()
	if err != nil {
		return IssueResult{Failure: IssueFailureGenerate, Err: err, SubjectID: in.SubjectID}
	}
	chainID, err := internal.NewChainID(now)
	if err != nil {
		return IssueResult{Failure: IssueFailureGenerate, Err: err, SubjectID: in.SubjectID}
	}
	nonce, err := internal.NewNonce()
	if err != nil {
		return IssueResult{Failure: IssueFailureGenerate, Err: err, SubjectID: in.SubjectID}
	}

	fph := deps.Fingerprints.Hash(in.Fingerprint)
	chainExpires := deps.Lifetimes.chainExpiry(now, now.Unix())
	refreshTTL := chainExpires.Sub(now)

	access, err := deps.Codec.EncodeAccess(jwt.AccessClaims{
		OrganizationID:  in.OrganizationID,
		Role:            string(role),
		Permissions:     perms,
		FingerprintHash: fph,
		ChainID:         chainID,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject: in.SubjectID,
			ID:      tokenID,
		},
	}, deps.Lifetimes.AccessTTL)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err, SubjectID: in.SubjectID}
	}
	refresh, err := deps.Codec.EncodeRefresh(jwt.RefreshClaims{
		ChainID:          chainID,
		Nonce:            nonce.String(),
		FingerprintHash:  fph,
		RegisteredClaims: gjwt.RegisteredClaims{Subject: in.SubjectID},
	}, refreshTTL)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err, SubjectID: in.SubjectID}
	}

	accessExpires := now.Add(deps.Lifetimes.AccessTTL)
	state := &chain.State{
		ChainID:            chainID,
		SubjectID:          in.SubjectID,
		DeviceHash:         deps.Fingerprints.Sum(in.Fingerprint),
		NonceHash:          nonce.Hash(),
		OrganizationID:     in.OrganizationID,
		Role:               string(role),
		Permissions:        perms,
		LastTokenID:        tokenID,
		LastTokenExpiresAt: accessExpires.Unix(),
		CreatedAt:          now.Unix(),
		ExpiresAt:          chainExpires.Unix(),
	}

	replaced, err := deps.Chains.Create(ctx, state)
	if err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err, SubjectID: in.SubjectID, ChainID: chainID}
	}
	if replaced != nil && replaced.LastTokenID != "" {
		if err := deps.Revocations.Revoke(ctx, replaced.LastTokenID, store.ReasonLogout, time.Unix(replaced.LastTokenExpiresAt, 0)); err != nil {
			warn(deps.Warn, "revoke replaced chain token failed", "subject_id", in.SubjectID, "chain_id", replaced.ChainID, "error", err)
		}
	}

	return IssueResult{
		SubjectID:        in.SubjectID,
		OrganizationID:   in.OrganizationID,
		Role:             string(role),
		Permissions:      perms,
		ChainID:          chainID,
		TokenID:          tokenID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExpires,
		RefreshExpiresAt: chainExpires,
		Replaced:         replaced,
	}
}

func validPrincipal(in IssueInput) error {
	switch {
	case strings.TrimSpace(in.SubjectID) == "":
		return errors.New("subject id required")
	case len(in.SubjectID) > maxIDLength, len(in.OrganizationID) > maxIDLength:
		return errors.New("identifier too long")
	case strings.ContainsAny(in.SubjectID, ":\n"):
		return errors.New("subject id contains reserved characters")
	}
	return nil
}
