package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolConfig tunes retry/monitoring behavior layered on top of an
// already-opened *sql.DB (see Open in connection.go). Connection-level
// settings (max open/idle conns, conn lifetime) are applied by the caller
// directly via *sql.DB before wrapping it here.
type PoolConfig struct {
	HealthCheckInterval time.Duration
	SlowQueryThreshold  time.Duration
	MaxRetries          int
	RetryBackoff        time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.SlowQueryThreshold <= 0 {
		c.SlowQueryThreshold = 500 * time.Millisecond
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
	return c
}

// ConnectionPool wraps an already-opened database handle with retrying
// query/exec helpers, Prometheus metrics, slow-query logging, and a
// background health-check loop. It owns no connection of its own — the
// database pool named by spec §2 is the *sql.DB passed to NewConnectionPool
// (built by Open); this type adds the monitoring layer on top.
type ConnectionPool struct {
	db              *sql.DB
	config          PoolConfig
	metrics         *poolMetrics
	registry        *prometheus.Registry
	slowQueryLog    []SlowQuery
	slowQueryMutex  sync.RWMutex
	healthCheckStop chan struct{}
}

type poolMetrics struct {
	activeConnections prometheus.Gauge
	idleConnections    prometheus.Gauge
	waitCount          prometheus.Counter
	maxIdleClosed      prometheus.Counter
	maxLifetimeClosed  prometheus.Counter
	queryDuration      prometheus.Histogram
	queryErrors        prometheus.Counter
	slowQueries        prometheus.Counter
	transactions       prometheus.Counter
	rollbacks          prometheus.Counter
	commits            prometheus.Counter
}

// SlowQuery records one query that exceeded config.SlowQueryThreshold.
type SlowQuery struct {
	Query     string
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// NewConnectionPool wraps db with retry, slow-query logging, and
// Prometheus instrumentation registered to a private registry (not the
// global default registerer), so constructing multiple pools — one per
// test, one per tenant shard — never collides on metric names. Callers
// that want process-wide scraping merge Registry() into their own
// gatherer.
func NewConnectionPool(db *sql.DB, config PoolConfig) *ConnectionPool {
	config = config.withDefaults()
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	metrics := &poolMetrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_active_connections",
			Help: "Number of active database connections",
		}),
		idleConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_idle_connections",
			Help: "Number of idle database connections",
		}),
		waitCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "db_pool_wait_count_total",
			Help: "Total number of waits for a connection",
		}),
		maxIdleClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "db_pool_max_idle_closed_total",
			Help: "Total connections closed due to max idle",
		}),
		maxLifetimeClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "db_pool_max_lifetime_closed_total",
			Help: "Total connections closed due to max lifetime",
		}),
		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration",
			Buckets: prometheus.DefBuckets,
		}),
		queryErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of query errors",
		}),
		slowQueries: factory.NewCounter(prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of slow queries",
		}),
		transactions: factory.NewCounter(prometheus.CounterOpts{
			Name: "db_transactions_total",
			Help: "Total number of database transactions",
		}),
		rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "db_rollbacks_total",
			Help: "Total number of transaction rollbacks",
		}),
		commits: factory.NewCounter(prometheus.CounterOpts{
			Name: "db_commits_total",
			Help: "Total number of transaction commits",
		}),
	}

	pool := &ConnectionPool{
		db:              db,
		config:          config,
		metrics:         metrics,
		registry:        registry,
		healthCheckStop: make(chan struct{}),
	}

	go pool.healthCheckLoop()
	go pool.collectMetrics()

	return pool
}

// Registry exposes the pool's private metrics registry for scraping.
func (p *ConnectionPool) Registry() *prometheus.Registry { return p.registry }

// Query executes a query with retry and monitoring.
func (p *ConnectionPool) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return p.queryWithRetry(ctx, query, args...)
}

// QueryRow executes a query returning a single row.
func (p *ConnectionPool) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	timer := prometheus.NewTimer(p.metrics.queryDuration)
	defer timer.ObserveDuration()

	start := time.Now()
	row := p.db.QueryRowContext(ctx, query, args...)

	if d := time.Since(start); d > p.config.SlowQueryThreshold {
		p.logSlowQuery(query, d, nil)
	}
	return row
}

// Exec executes a query without returning rows, with retry.
func (p *ConnectionPool) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return p.execWithRetry(ctx, query, args...)
}

// Begin starts a new monitored transaction.
func (p *ConnectionPool) Begin(ctx context.Context) (*Transaction, error) {
	p.metrics.transactions.Inc()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Transaction{tx: tx, pool: p, started: time.Now()}, nil
}

// Transaction wraps a database transaction with the same monitoring as Pool.
type Transaction struct {
	tx      *sql.Tx
	pool    *ConnectionPool
	started time.Time
}

func (t *Transaction) Commit() error {
	t.pool.metrics.commits.Inc()
	return t.tx.Commit()
}

func (t *Transaction) Rollback() error {
	t.pool.metrics.rollbacks.Inc()
	return t.tx.Rollback()
}

func (t *Transaction) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	timer := prometheus.NewTimer(t.pool.metrics.queryDuration)
	defer timer.ObserveDuration()

	start := time.Now()
	result, err := t.tx.ExecContext(ctx, query, args...)
	if d := time.Since(start); d > t.pool.config.SlowQueryThreshold {
		t.pool.logSlowQuery(query, d, err)
	}
	if err != nil {
		t.pool.metrics.queryErrors.Inc()
	}
	return result, err
}

// GetStats returns the underlying *sql.DB's connection pool statistics.
func (p *ConnectionPool) GetStats() sql.DBStats {
	return p.db.Stats()
}

// GetSlowQueries returns a snapshot of recently logged slow queries.
func (p *ConnectionPool) GetSlowQueries() []SlowQuery {
	p.slowQueryMutex.RLock()
	defer p.slowQueryMutex.RUnlock()

	out := make([]SlowQuery, len(p.slowQueryLog))
	copy(out, p.slowQueryLog)
	return out
}

// Close stops the pool's background loops. It does not close the
// underlying *sql.DB — callers that opened it (internal/appctx, via the
// CloseDatabase shutdown phase) own that lifecycle.
func (p *ConnectionPool) Close() {
	close(p.healthCheckStop)
}

func (p *ConnectionPool) queryWithRetry(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		timer := prometheus.NewTimer(p.metrics.queryDuration)
		start := time.Now()
		rows, err = p.db.QueryContext(ctx, query, args...)
		d := time.Since(start)
		timer.ObserveDuration()

		if d > p.config.SlowQueryThreshold {
			p.logSlowQuery(query, d, err)
		}
		if err == nil {
			return rows, nil
		}
		if !isRetryableError(err) {
			p.metrics.queryErrors.Inc()
			return nil, err
		}
		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.config.RetryBackoff * time.Duration(attempt+1)):
			}
		}
	}

	p.metrics.queryErrors.Inc()
	return nil, fmt.Errorf("query failed after %d retries: %w", p.config.MaxRetries, err)
}

func (p *ConnectionPool) execWithRetry(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		timer := prometheus.NewTimer(p.metrics.queryDuration)
		start := time.Now()
		result, err = p.db.ExecContext(ctx, query, args...)
		d := time.Since(start)
		timer.ObserveDuration()

		if d > p.config.SlowQueryThreshold {
			p.logSlowQuery(query, d, err)
		}
		if err == nil {
			return result, nil
		}
		if !isRetryableError(err) {
			p.metrics.queryErrors.Inc()
			return nil, err
		}
		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.config.RetryBackoff * time.Duration(attempt+1)):
			}
		}
	}

	p.metrics.queryErrors.Inc()
	return nil, fmt.Errorf("exec failed after %d retries: %w", p.config.MaxRetries, err)
}

func (p *ConnectionPool) logSlowQuery(query string, duration time.Duration, err error) {
	p.metrics.slowQueries.Inc()

	p.slowQueryMutex.Lock()
	defer p.slowQueryMutex.Unlock()

	if len(p.slowQueryLog) >= 100 {
		p.slowQueryLog = p.slowQueryLog[1:]
	}
	p.slowQueryLog = append(p.slowQueryLog, SlowQuery{
		Query: query, Duration: duration, Timestamp: time.Now(), Error: err,
	})
}

func (p *ConnectionPool) healthCheckLoop() {
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = p.db.PingContext(ctx)
			cancel()
		case <-p.healthCheckStop:
			return
		}
	}
}

func (p *ConnectionPool) collectMetrics() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := p.db.Stats()
			p.metrics.activeConnections.Set(float64(stats.InUse))
			p.metrics.idleConnections.Set(float64(stats.Idle))
			p.metrics.waitCount.Add(float64(stats.WaitCount))
			p.metrics.maxIdleClosed.Add(float64(stats.MaxIdleClosed))
			p.metrics.maxLifetimeClosed.Add(float64(stats.MaxLifetimeClosed))
		case <-p.healthCheckStop:
			return
		}
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"connection refused", "connection reset", "broken pipe",
		"deadline exceeded", "timeout", "too many connections",
	} {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
