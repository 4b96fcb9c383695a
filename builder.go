package goToken

import (
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	codec     IdentityCodec
	logger    *zap.Logger
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the TTL store client. Single-node, cluster and sentinel
// clients are all accepted.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithIdentityCodec(codec IdentityCodec) *Builder {
	b.codec = codec
	return b
}

// WithLogger sets the logger for best-effort failures that are not returned
// to callers. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for token timestamps and store expiry
// arithmetic.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, parses key material and wires the
// stores. It fails fast on any configuration problem.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.codec == nil {
		return nil, ErrIdentityCodecRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	jm, err := jwt.NewManager(jwt.Config{
		Algorithm:      cfg.JWT.Algorithm,
		Secret:         cloneBytes(cfg.JWT.Secret),
		PublicKey:      cloneBytes(cfg.JWT.PublicKey),
		KeyID:          cfg.JWT.KeyID,
		Leeway:         cfg.Verify.ExpLeeway,
		Issuer:         cfg.Verify.Issuer,
		Audience:       cfg.Verify.Audience,
		Subject:        cfg.Verify.Subject,
		VerifyIssuedAt: cfg.Verify.IssuedAt,
		Now:            clock,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		jwtManager: jm,
		blacklist: store.NewBlacklist(
			b.redis,
			cfg.Store.BlacklistPrefix,
			cfg.Store.BlacklistTTL,
			cfg.Store.ScanCount,
			clock,
		),
		refreshTokens: store.NewRefreshTokens(
			b.redis,
			cfg.Store.RefreshPrefix,
			cfg.Refresh.GracePeriod,
			cfg.Store.ScanCount,
			clock,
		),
		refreshList: store.NewRefreshList(b.redis, cfg.Store.RefreshListKey),
		codec:       b.codec,
		logger:      logger.Named("gotoken"),
		clock:       clock,
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, engine.logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	engine.logger.Debug("engine built",
		zap.String("algorithm", jm.Algorithm()),
		zap.Duration("access_ttl", cfg.JWT.AccessTTL),
		zap.Duration("refresh_ttl", cfg.Refresh.TTL),
		zap.Duration("grace_period", cfg.Refresh.GracePeriod),
		zap.Bool("blacklist", cfg.Verify.Blacklist),
	)

	return engine, nil
}
