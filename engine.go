package goToken

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
	"go.uber.org/zap"
)

// Engine issues, verifies and refreshes token pairs. It is immutable after
// Build and safe for concurrent use; all mutable state lives in Redis.
type Engine struct {
	config        Config
	jwtManager    *jwt.Manager
	blacklist     *store.Blacklist
	refreshTokens *store.RefreshTokens
	refreshList   *store.RefreshList
	codec         IdentityCodec
	logger        *zap.Logger
	audit         *auditDispatcher
	metrics       *Metrics
	clock         func() time.Time
}

// Close flushes pending audit events. The Redis client belongs to the
// caller and is left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Blacklist exposes the blacklist store for administrative use.
func (e *Engine) Blacklist() *store.Blacklist {
	if e == nil {
		return nil
	}
	return e.blacklist
}

// RefreshTokens exposes the refresh record store for administrative use.
func (e *Engine) RefreshTokens() *store.RefreshTokens {
	if e == nil {
		return nil
	}
	return e.refreshTokens
}

// RefreshList exposes the set of users marked for forced refresh.
func (e *Engine) RefreshList() *store.RefreshList {
	if e == nil {
		return nil
	}
	return e.refreshList
}

func (e *Engine) ready() bool {
	return e != nil && e.jwtManager != nil && e.refreshTokens != nil && e.codec != nil
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeVerify(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))
}

// forcedRefresh reports whether userID is marked for forced refresh.
func (e *Engine) forcedRefresh(ctx context.Context, userID string) (bool, error) {
	return e.refreshList.Contains(ctx, userID)
}
