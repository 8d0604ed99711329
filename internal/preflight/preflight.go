// Package preflight checks datasource reachability before work that needs it.
//
// Each datasource gets a circuit breaker, kept in a bounded pool keyed by the
// SHA-256 of its identifier so connection strings never end up in breaker names,
// logs or metrics. A probe is a read-only transaction running SELECT 1 under a
// database-side statement timeout, itself bounded by a call timeout.
package preflight

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/tenantconfig/internal/database"
	"github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/metrics"
)

var (
	// ErrBreakerOpen indicates the datasource breaker is open and the call failed fast.
	ErrBreakerOpen = errors.Wrap(errors.ErrUnavailable, "datasource circuit open")

	// ErrProbeFailed indicates the datasource did not answer the probe.
	ErrProbeFailed = errors.Wrap(errors.ErrUnavailable, "datasource probe failed")
)

// Options configures a Pool.
type Options struct {
	PoolSize         int
	PoolTTL          time.Duration
	MinRequests      uint32
	FailureRatio     float64
	Window           time.Duration
	ResetTimeout     time.Duration
	CallTimeout      time.Duration
	StatementTimeout time.Duration
	Logger           *slog.Logger
	Metrics          metrics.SubsystemMetrics
}

func (o *Options) setDefaults() {
	if o.PoolSize <= 0 {
		o.PoolSize = 256
	}
	if o.PoolTTL <= 0 {
		o.PoolTTL = time.Hour
	}
	if o.MinRequests == 0 {
		o.MinRequests = 5
	}
	if o.FailureRatio <= 0 || o.FailureRatio > 1 {
		o.FailureRatio = 0.5
	}
	if o.Window <= 0 {
		o.Window = time.Minute
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = 30 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 3 * time.Second
	}
	if o.StatementTimeout <= 0 {
		o.StatementTimeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNoOpSubsystemMetrics()
	}
}

type breaker = gobreaker.CircuitBreaker[struct{}]

// Pool holds one breaker per datasource identifier.
type Pool struct {
	opts     Options
	mu       sync.Mutex
	breakers *expirable.LRU[string, *breaker]
}

// NewPool creates a Pool.
func NewPool(opts Options) *Pool {
	opts.setDefaults()
	return &Pool{
		opts:     opts,
		breakers: expirable.NewLRU[string, *breaker](opts.PoolSize, nil, opts.PoolTTL),
	}
}

// Breaker returns the breaker for identifier, creating it on first use.
func (p *Pool) Breaker(identifier string) *gobreaker.CircuitBreaker[struct{}] {
	key := hashIdentifier(identifier)

	p.mu.Lock()
	defer p.mu.Unlock()
	if cb, ok := p.breakers.Get(key); ok {
		return cb
	}
	cb := p.newBreaker(key)
	p.breakers.Add(key, cb)
	return cb
}

func (p *Pool) newBreaker(key string) *breaker {
	minRequests := p.opts.MinRequests
	ratio := p.opts.FailureRatio
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "preflight:" + key[:12],
		MaxRequests: 1,
		Interval:    p.opts.Window,
		Timeout:     p.opts.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.opts.Logger.Warn("preflight breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			p.opts.Metrics.BreakerStateChange(context.Background(), to.String())
		},
		// a caller giving up is not the datasource's fault
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Probe checks ds through its breaker. An open breaker fails fast with
// ErrBreakerOpen; a failed probe returns ErrProbeFailed.
func (p *Pool) Probe(ctx context.Context, ds *database.Datasource) error {
	identifier := ds.Identifier
	if identifier == "" {
		identifier = ds.Name
	}
	cb := p.Breaker(identifier)

	start := time.Now()
	_, err := cb.Execute(func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
		defer cancel()
		return struct{}{}, probe(callCtx, ds.DB, ds.Driver, p.opts.StatementTimeout)
	})

	switch {
	case err == nil:
		p.opts.Metrics.ProbeLatency(ctx, time.Since(start), "success")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		p.opts.Metrics.DBUnavailable(ctx, "breaker_open")
		return fmt.Errorf("%w: datasource %s", ErrBreakerOpen, ds.Name)
	default:
		p.opts.Metrics.ProbeLatency(ctx, time.Since(start), "error")
		p.opts.Metrics.DBUnavailable(ctx, "probe_failed")
		p.opts.Logger.Warn("datasource probe failed",
			slog.String("datasource", ds.Name),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: datasource %s: %v", ErrProbeFailed, ds.Name, err)
	}
}

// ProbeAll probes every datasource concurrently and returns the failures by name.
func (p *Pool) ProbeAll(ctx context.Context, sources []*database.Datasource) map[string]error {
	var (
		mu       sync.Mutex
		failures = make(map[string]error)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, ds := range sources {
		g.Go(func() error {
			if err := p.Probe(gctx, ds); err != nil {
				mu.Lock()
				failures[ds.Name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// BreakersHealthy reports whether no breaker in the pool is open.
func (p *Pool) BreakersHealthy() bool {
	for _, cb := range p.breakers.Values() {
		if cb.State() == gobreaker.StateOpen {
			return false
		}
	}
	return true
}

// Len returns the number of live breakers.
func (p *Pool) Len() int {
	return p.breakers.Len()
}

func probe(ctx context.Context, db *sql.DB, driver string, statementTimeout time.Duration) (err error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && err == nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = rbErr
		}
	}()

	ms := statementTimeout.Milliseconds()
	query := "SELECT 1"
	switch driver {
	case database.DriverMySQL:
		query = fmt.Sprintf("SELECT /*+ MAX_EXECUTION_TIME(%d) */ 1", ms)
	default:
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)); err != nil {
			return err
		}
	}

	var one int
	return tx.QueryRowContext(ctx, query).Scan(&one)
}

func hashIdentifier(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}
