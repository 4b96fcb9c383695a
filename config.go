package goToken

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goToken/internal"
	"github.com/MrEthical07/goToken/jwt"
)

// Config is the complete engine configuration. Build it once with
// DefaultConfig, override fields, and pass it to Builder.WithConfig. The
// builder keeps its own copy, so later mutation of the caller's value has
// no effect on a built Engine.
type Config struct {
	JWT     JWTConfig
	Refresh RefreshConfig
	Verify  VerifyConfig
	Store   StoreConfig
	Audit   AuditConfig
	Metrics MetricsConfig

	// ProductionMode enables stricter Validate rules.
	ProductionMode bool
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access token signing.
type JWTConfig struct {
	AccessTTL time.Duration
	// Algorithm is a JWS algorithm name such as "HS256", "RS256", "ES256"
	// or "EdDSA". "none" is never accepted.
	Algorithm string
	// Secret is the HMAC key, or the PEM private key for asymmetric
	// algorithms (raw 64-byte seed+key also accepted for EdDSA).
	Secret []byte
	// PublicKey optionally overrides the verification key derived from Secret.
	PublicKey []byte
	KeyID     string

	Issuer   string
	Audience []string
	Subject  string

	// UserIDClaim names the field of the user claim that identifies the user
	// in the TTL store.
	UserIDClaim string
	// JTIHexLength is the random component of every jti, in bytes.
	JTIHexLength int
}

/*
====================================
REFRESH CONFIG
====================================
*/

type RefreshConfig struct {
	// TTL is measured from the iat of the access token the secret was
	// issued with.
	TTL time.Duration
	// GracePeriod keeps a redeemed refresh record alive so concurrent
	// clients presenting the same secret all succeed. Zero deletes it on
	// first use.
	GracePeriod time.Duration
	// AlwaysRefreshUser treats every user as marked for forced refresh:
	// each Verify resolves the authoritative user and re-issues the pair,
	// even for a valid token.
	AlwaysRefreshUser bool
}

/*
====================================
VERIFY CONFIG
====================================
*/

// VerifyConfig holds the claim checks applied by Engine.Verify. A nil
// matcher disables the corresponding check.
type VerifyConfig struct {
	Issuer   jwt.Matcher
	Audience jwt.Matcher
	Subject  jwt.Matcher

	IssuedAt  bool
	ExpLeeway time.Duration
	// Blacklist consults the blacklist on every Verify. Off by default
	// since it costs one store round trip per request.
	Blacklist bool
}

/*
====================================
STORE CONFIG
====================================
*/

type StoreConfig struct {
	BlacklistPrefix string
	RefreshPrefix   string
	RefreshListKey  string
	// BlacklistTTL is used when Block is called without an expiry.
	BlacklistTTL time.Duration
	ScanCount    int64
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. JWT.Secret is empty and
// must be set before Build.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			Algorithm:    "HS256",
			UserIDClaim:  "id",
			JTIHexLength: 6,
		},
		Refresh: RefreshConfig{
			TTL:         90 * 24 * time.Hour,
			GracePeriod: 8 * time.Second,
		},
		Verify: VerifyConfig{
			IssuedAt: true,
		},
		Store: StoreConfig{
			BlacklistPrefix: "blacklist",
			RefreshPrefix:   "refresh",
			RefreshListKey:  "user_refresh_list",
			BlacklistTTL:    15 * time.Minute,
			ScanCount:       100,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.Audience != nil {
		out.JWT.Audience = append([]string(nil), cfg.JWT.Audience...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found. Key material is
// only checked for presence here; NewManager parses it during Build.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL < time.Second {
		return errors.New("JWT AccessTTL must be >= 1s")
	}
	if c.JWT.Algorithm == "" || strings.EqualFold(c.JWT.Algorithm, "none") {
		return errors.New("JWT Algorithm is required and must not be none")
	}
	if len(c.JWT.Secret) == 0 {
		return errors.New("JWT Secret is required")
	}
	if c.JWT.UserIDClaim == "" {
		return errors.New("JWT UserIDClaim must not be empty")
	}
	if c.JWT.JTIHexLength < internal.MinJTIHexLength {
		return errors.New("JWT JTIHexLength must be >= 4")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.GracePeriod < 0 {
		return errors.New("Refresh GracePeriod must be >= 0")
	}
	if c.Refresh.GracePeriod >= c.Refresh.TTL {
		return errors.New("Refresh GracePeriod must be shorter than Refresh TTL")
	}

	// Verify
	if c.Verify.ExpLeeway < 0 {
		return errors.New("Verify ExpLeeway must be >= 0")
	}

	// Store
	if c.Store.BlacklistPrefix == "" || c.Store.RefreshPrefix == "" || c.Store.RefreshListKey == "" {
		return errors.New("Store prefixes and RefreshListKey must not be empty")
	}
	if c.Store.BlacklistPrefix == c.Store.RefreshPrefix {
		return errors.New("Store BlacklistPrefix and RefreshPrefix must differ")
	}
	if strings.Contains(c.Store.BlacklistPrefix, ":") || strings.Contains(c.Store.RefreshPrefix, ":") {
		return errors.New("Store prefixes must not contain ':'")
	}
	if c.Store.RefreshListKey == c.Store.BlacklistPrefix || c.Store.RefreshListKey == c.Store.RefreshPrefix {
		return errors.New("Store RefreshListKey must not collide with a prefix")
	}
	if c.Store.BlacklistTTL <= 0 {
		return errors.New("Store BlacklistTTL must be > 0")
	}
	if c.Store.ScanCount <= 0 {
		return errors.New("Store ScanCount must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	if c.ProductionMode {
		if c.JWT.AccessTTL > time.Hour {
			return errors.New("ProductionMode requires JWT AccessTTL <= 1h")
		}
		if c.Refresh.GracePeriod > time.Minute {
			return errors.New("ProductionMode requires Refresh GracePeriod <= 1m")
		}
		if strings.HasPrefix(strings.ToUpper(c.JWT.Algorithm), "HS") && len(c.JWT.Secret) < 32 {
			return errors.New("ProductionMode requires HMAC secret length >= 256 bits")
		}
		if !c.Verify.IssuedAt {
			return errors.New("ProductionMode requires Verify IssuedAt")
		}
	}

	return nil
}
