package jwt

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config configures a [Manager].
//
// Secret is the HMAC key for HS* algorithms and a PEM encoded private key
// for RS*, PS*, ES* and EdDSA (a raw 64-byte ed25519 key is also accepted).
// PublicKey is optional; when empty the verification key is derived from
// the private key.
type Config struct {
	Algorithm string
	Secret    []byte
	PublicKey []byte
	KeyID     string
	Leeway    time.Duration

	// Verification matchers; nil disables the corresponding check.
	Issuer   Matcher
	Audience Matcher
	Subject  Matcher

	// VerifyIssuedAt rejects tokens whose iat lies after now plus leeway.
	VerifyIssuedAt bool

	Now func() time.Time
}

// Manager signs payloads and verifies compact tokens for one algorithm.
// It is immutable after construction and safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	parser    *jwt.Parser
}

// Parsed is the outcome of a successful [Manager.Parse].
type Parsed struct {
	Payload *Payload
	Header  map[string]any
	Raw     string
}

type parseOptions struct {
	skipExpiry bool
}

// ParseOption adjusts a single Parse call.
type ParseOption func(*parseOptions)

// SkipExpiry disables only the exp check; signature, algorithm and every
// other claim check still apply.
func SkipExpiry() ParseOption {
	return func(o *parseOptions) {
		o.skipExpiry = true
	}
}

// NewManager validates cfg, resolves the signing keys and returns a
// ready-to-use manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errMissingSecret
	}
	if cfg.Leeway < 0 {
		return nil, errInvalidLeeway
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil || method.Alg() == jwt.SigningMethodNone.Alg() {
		return nil, fmt.Errorf("%w: %q", errUnsupportedAlgorithm, cfg.Algorithm)
	}

	signKey, verifyKey, err := resolveKeys(method, cfg.Secret, cfg.PublicKey)
	if err != nil {
		return nil, err
	}

	return &Manager{
		config:    cfg,
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithJSONNumber(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Algorithm returns the configured algorithm name.
func (m *Manager) Algorithm() string {
	return m.method.Alg()
}

// Sign serializes p into a compact signed token.
func (m *Manager) Sign(p *Payload) (string, error) {
	token := jwt.NewWithClaims(m.method, p.Claims())
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	return token.SignedString(m.signKey)
}

// Parse verifies raw and returns its payload and header.
//
// Checks run in a fixed order and the first failure wins: structure,
// algorithm, signature, required claims, iat not in the future,
// iss/aud/sub matchers, and finally exp. An expired token therefore always
// passed every other check; callers recover its payload by parsing again
// with [SkipExpiry].
func (m *Manager) Parse(raw string, opts ...ParseOption) (*Parsed, error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	token, err := m.parser.ParseWithClaims(raw, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if m.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, m.classify(token, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}
	payload, err := PayloadFromClaims(claims)
	if err != nil {
		return nil, err
	}
	if err := m.verifyClaims(payload, o); err != nil {
		return nil, err
	}

	header := make(map[string]any, len(token.Header))
	for k, v := range token.Header {
		header[k] = v
	}
	return &Parsed{Payload: payload, Header: header, Raw: raw}, nil
}

func (m *Manager) verifyClaims(p *Payload, o parseOptions) error {
	now := m.config.Now()
	leeway := m.config.Leeway

	if m.config.Issuer != nil && p.Issuer == "" {
		return fmt.Errorf("%w: %s", ErrMissingClaim, ClaimIssuer)
	}
	if m.config.Audience != nil && len(p.Audience) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingClaim, ClaimAudience)
	}
	if m.config.Subject != nil && p.Subject == "" {
		return fmt.Errorf("%w: %s", ErrMissingClaim, ClaimSubject)
	}

	if m.config.VerifyIssuedAt && p.IssuedAt.After(now.Add(leeway)) {
		return ErrIssuedInFuture
	}

	if m.config.Issuer != nil && !m.config.Issuer.Match(p.Issuer) {
		return ErrInvalidIssuer
	}
	if m.config.Audience != nil && !anyMatch(m.config.Audience, p.Audience) {
		return ErrInvalidAudience
	}
	if m.config.Subject != nil && !m.config.Subject.Match(p.Subject) {
		return ErrInvalidSubject
	}

	if !o.skipExpiry && now.After(p.ExpiresAt.Add(leeway)) {
		return ErrTokenExpired
	}
	return nil
}

// classify maps a golang-jwt failure onto exactly one package sentinel
// while keeping the library error in the chain.
func (m *Manager) classify(token *jwt.Token, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	case token != nil && headerAlg(token) != m.method.Alg():
		return fmt.Errorf("%w: %w", ErrAlgorithmMismatch, err)
	default:
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
}

func headerAlg(token *jwt.Token) string {
	alg, _ := token.Header["alg"].(string)
	return alg
}

func anyMatch(m Matcher, values []string) bool {
	for _, v := range values {
		if m.Match(v) {
			return true
		}
	}
	return false
}

func resolveKeys(method jwt.SigningMethod, secret, public []byte) (any, any, error) {
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		return secret, secret, nil

	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(secret)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid rsa private key: %w", err)
		}
		var pub *rsa.PublicKey = &priv.PublicKey
		if len(public) > 0 {
			if pub, err = jwt.ParseRSAPublicKeyFromPEM(public); err != nil {
				return nil, nil, fmt.Errorf("invalid rsa public key: %w", err)
			}
		}
		return priv, pub, nil

	case *jwt.SigningMethodECDSA:
		priv, err := jwt.ParseECPrivateKeyFromPEM(secret)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid ecdsa private key: %w", err)
		}
		var pub *ecdsa.PublicKey = &priv.PublicKey
		if len(public) > 0 {
			if pub, err = jwt.ParseECPublicKeyFromPEM(public); err != nil {
				return nil, nil, fmt.Errorf("invalid ecdsa public key: %w", err)
			}
		}
		return priv, pub, nil

	case *jwt.SigningMethodEd25519:
		priv, err := parseEdPrivateKey(secret)
		if err != nil {
			return nil, nil, err
		}
		pub := priv.Public().(ed25519.PublicKey)
		if len(public) > 0 {
			if pub, err = parseEdPublicKey(public); err != nil {
				return nil, nil, err
			}
		}
		return priv, pub, nil
	}
	return nil, nil, errUnsupportedAlgorithm
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
