package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/internal"
	"github.com/MrEthical07/goToken/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type loadUser struct {
	ID int
}

type pairState struct {
	mu     sync.Mutex
	token  string
	secret string
}

func codec() goToken.IdentityCodec {
	return goToken.CodecFuncs{
		To: func(user any) (map[string]any, error) {
			u, ok := user.(loadUser)
			if !ok {
				return nil, fmt.Errorf("unexpected user type %T", user)
			}
			return map[string]any{"id": u.ID}, nil
		},
		From: func(repr map[string]any) (any, error) {
			id, err := strconv.Atoi(fmt.Sprint(repr["id"]))
			if err != nil {
				return nil, err
			}
			return loadUser{ID: id}, nil
		},
	}
}

func connect(addr string, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Info("using embedded miniredis", zap.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	logger.Info("using redis", zap.String("addr", addr))
	return client, func() { _ = client.Close() }, nil
}

func run(ctx context.Context, s settings, logger *zap.Logger) error {
	client, cleanup, err := connect(s.RedisAddr, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	secret, err := internal.RandomHex(32)
	if err != nil {
		return err
	}
	cfg := goToken.DefaultConfig()
	cfg.JWT.Secret = []byte(secret)
	cfg.JWT.AccessTTL = s.AccessTTL
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := goToken.New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentityCodec(codec()).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	var report *otelReport
	if s.OTel {
		if report, err = newOTelReport(engine); err != nil {
			return fmt.Errorf("otel exporter: %w", err)
		}
		defer func() {
			if err := report.close(context.Background()); err != nil {
				logger.Warn("otel shutdown failed", zap.Error(err))
			}
		}()
	}

	states := make([]pairState, s.Users)
	seed := time.Now()
	if err := seedPairs(ctx, engine, states, s.Concurrency); err != nil {
		return err
	}
	logger.Info("seeded token pairs",
		zap.Int("users", s.Users),
		zap.Duration("took", time.Since(seed).Round(time.Millisecond)))

	verifyStats, err := runPhase(ctx, s.Ops, s.Concurrency, func(r *rand.Rand) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		token := state.token
		state.mu.Unlock()
		_, err := engine.Verify(ctx, token, "")
		return err
	})
	if err != nil {
		return err
	}

	refreshStats, err := runPhase(ctx, s.Ops, s.Concurrency, func(r *rand.Rand) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()

		d, err := engine.Verify(ctx, state.token, state.secret)
		if err != nil {
			return err
		}
		if err := d.Refresh(ctx); err != nil {
			return err
		}
		state.token, state.secret = d.Token(), d.Secret()
		return nil
	})
	if err != nil {
		return err
	}

	collisions, err := jtiCollisions(s.JTISamples)
	if err != nil {
		return err
	}

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
	fmt.Printf("jti: samples=%d collisions=%d\n", s.JTISamples, collisions)
	if s.Metrics {
		fmt.Print(prometheus.NewPrometheusExporter(engine).Render())
	}
	if report != nil {
		return report.write(ctx, os.Stdout)
	}
	return nil
}

func seedPairs(ctx context.Context, engine *goToken.Engine, states []pairState, concurrency int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range states {
		g.Go(func() error {
			issued, err := engine.Issue(ctx, loadUser{ID: i + 1}, nil)
			if err != nil {
				return fmt.Errorf("seed user %d: %w", i+1, err)
			}
			states[i].token = issued.Token
			states[i].secret = issued.Secret
			return nil
		})
	}
	return g.Wait()
}

// runPhase executes op ops times across concurrency workers. Individual
// operation failures are counted, not returned; only cancellation aborts.
func runPhase(ctx context.Context, ops, concurrency int, op func(r *rand.Rand) error) (phaseStats, error) {
	var (
		cursor    atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)

	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*7919))
			local := make([]time.Duration, 0, ops/concurrency+1)
			defer func() {
				mu.Lock()
				latencies = append(latencies, local...)
				mu.Unlock()
			}()

			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				if cursor.Add(1) > int64(ops) {
					return nil
				}
				t0 := time.Now()
				err := op(r)
				local = append(local, time.Since(t0))
				if err != nil {
					failures.Add(1)
				}
			}
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return phaseStats{}, err
	}
	return computeStats(time.Since(start), latencies, failures.Load()), nil
}

// jtiCollisions generates n jtis for a single user as fast as possible and
// counts duplicates.
func jtiCollisions(n int) (int, error) {
	seen := make(map[string]struct{}, n)
	collisions := 0
	for i := 0; i < n; i++ {
		jti, err := internal.NewJTI("1", 6, time.Now())
		if err != nil {
			return collisions, err
		}
		if _, dup := seen[jti]; dup {
			collisions++
			continue
		}
		seen[jti] = struct{}{}
	}
	return collisions, nil
}
