package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm used for both token kinds.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys. This is the default.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// Token use markers. A token minted for one use never decodes as the other.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

var (
	// ErrMalformed is returned for tokens that are structurally invalid,
	// carry the wrong use marker, or miss required claims.
	ErrMalformed = errors.New("malformed token")
	// ErrSignatureInvalid is returned when the signature does not verify
	// against any known key. It wraps ErrMalformed.
	ErrSignatureInvalid = fmt.Errorf("%w: signature invalid", ErrMalformed)
	// ErrExpired is returned for correctly signed tokens past their expiry.
	ErrExpired = errors.New("token expired")
)

// Config holds codec settings.
//
// Keys is consulted on every Encode (for the signing key) and every Decode
// (for the verification key set), so a KeySource may rotate keys at runtime.
type Config struct {
	SigningMethod SigningMethod
	Keys          KeySource
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	Now           func() time.Time
}

// Manager encodes and decodes signed access and refresh tokens.
// It is safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the claim set of an access token. Subject and ID
// (jti, the token id) live in the embedded registered claims.
type AccessClaims struct {
	Use             string   `json:"use"`
	OrganizationID  string   `json:"org"`
	Role            string   `json:"role"`
	Permissions     []string `json:"perms,omitempty"`
	FingerprintHash string   `json:"fph"`
	ChainID         string   `json:"cid"`
	jwt.RegisteredClaims
}

// RefreshClaims is the minimal claim set of a refresh token. It carries no
// role or permission data.
type RefreshClaims struct {
	Use             string `json:"use"`
	ChainID         string `json:"cid"`
	Nonce           string `json:"nonce"`
	FingerprintHash string `json:"fph"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager. The verification key set is
// checked eagerly; the signing key is resolved lazily on each Encode.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodEd25519
	}
	if cfg.SigningMethod != MethodEd25519 && cfg.SigningMethod != MethodHS256 {
		return nil, errors.New("unsupported signing method")
	}
	if cfg.Keys == nil {
		return nil, errors.New("key source required")
	}
	keys, err := cfg.Keys.VerificationKeys()
	if err != nil {
		return nil, err
	}
	if err := checkKeys(cfg.SigningMethod, keys); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// EncodeAccess stamps iat/exp (now, now+ttl) and the access use marker onto
// c and signs it with the current key.
func (m *Manager) EncodeAccess(c AccessClaims, ttl time.Duration) (string, error) {
	c.Use = UseAccess
	if err := m.stamp(&c.RegisteredClaims, ttl); err != nil {
		return "", err
	}
	return m.sign(&c)
}

// EncodeRefresh stamps iat/exp and the refresh use marker onto c and signs it.
func (m *Manager) EncodeRefresh(c RefreshClaims, ttl time.Duration) (string, error) {
	c.Use = UseRefresh
	if err := m.stamp(&c.RegisteredClaims, ttl); err != nil {
		return "", err
	}
	return m.sign(&c)
}

// DecodeAccess verifies signature, expiry and shape of an access token.
// Failures are ErrMalformed, ErrSignatureInvalid or ErrExpired.
func (m *Manager) DecodeAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Use != UseAccess ||
		claims.Subject == "" ||
		claims.ID == "" ||
		claims.FingerprintHash == "" {
		return nil, ErrMalformed
	}
	if err := m.checkIssuedAt(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

// DecodeRefresh verifies signature, expiry and shape of a refresh token.
func (m *Manager) DecodeRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Use != UseRefresh ||
		claims.Subject == "" ||
		claims.ChainID == "" ||
		claims.Nonce == "" ||
		claims.FingerprintHash == "" {
		return nil, ErrMalformed
	}
	if err := m.checkIssuedAt(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) stamp(rc *jwt.RegisteredClaims, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("invalid token ttl")
	}
	now := m.config.Now()
	rc.IssuedAt = jwt.NewNumericDate(now)
	rc.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if m.config.Issuer != "" {
		rc.Issuer = m.config.Issuer
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return nil
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	key, err := m.config.Keys.SigningKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	signKey, err := signKeyFor(m.config.SigningMethod, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}

	token := jwt.NewWithClaims(m.method(), claims)
	token.Header["kid"] = key.ID

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	return signed, nil
}

func (m *Manager) parse(token string, claims jwt.Claims) error {
	if token == "" {
		return ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(token, claims, m.keyFunc)
	if err != nil {
		return classify(err)
	}
	if !parsed.Valid {
		return ErrMalformed
	}
	return nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != m.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, errors.New("missing kid")
	}

	keys, err := m.config.Keys.VerificationKeys()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.ID == kid {
			return verifyKeyFor(m.config.SigningMethod, k)
		}
	}
	return nil, errors.New("unknown kid")
}

func (m *Manager) checkIssuedAt(iat *jwt.NumericDate) error {
	if iat == nil {
		return ErrMalformed
	}
	if m.config.MaxFutureIAT > 0 && iat.Time.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
		return fmt.Errorf("%w: iat too far in the future", ErrMalformed)
	}
	return nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

// classify maps parser errors onto the codec taxonomy. Signature problems
// win over expiry: the parser only validates claims after the signature.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
