package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// Supported driver names
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds database connection configuration
type Config struct {
	Driver string

	// DSN overrides every other connection setting when non-empty
	DSN string

	// SQLite
	Path     string
	ReadOnly bool

	// PostgreSQL
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DataSourceName builds the driver-specific connection string
func (c *Config) DataSourceName() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}

	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host,
			c.Port,
			c.User,
			c.Password,
			c.Database,
			c.SSLMode,
		), nil
	case DriverSQLite:
		return sqliteDSN(c.Path, c.ReadOnly)
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

func sqliteDSN(path string, readOnly bool) (string, error) {
	if path == "" {
		return "", errors.New("sqlite path is required")
	}

	params := []string{"_busy_timeout=5000"}
	if readOnly {
		params = append(params, "mode=ro")
	} else if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// DB wraps sqlx.DB with monitoring and metrics
type DB struct {
	db      *sqlx.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  *Config

	stop     chan struct{}
	stopOnce sync.Once
}

// Open creates a new database connection pool and verifies connectivity
func Open(cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*DB, error) {
	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(ctx, "[DB_INIT] Database connection established", logging.Fields{
		"driver":            cfg.Driver,
		"path":              cfg.Path,
		"host":              cfg.Host,
		"database":          cfg.Database,
		"read_only":         cfg.ReadOnly,
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	p := New(db, cfg, logger, metricsCollector)
	go p.monitorConnectionPool(10 * time.Second)

	return p, nil
}

// New wraps an already opened sqlx handle. The pool monitor is not started.
func New(db *sqlx.DB, cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DB {
	if cfg == nil {
		cfg = &Config{Driver: db.DriverName()}
	}
	return &DB{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
		stop:    make(chan struct{}),
	}
}

// Close stops the pool monitor and closes the database connection
func (p *DB) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	p.logger.Info(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{
		"driver": p.db.DriverName(),
	})
	return p.db.Close()
}

// Stats returns the connection pool statistics
func (p *DB) Stats() sql.DBStats {
	return p.db.Stats()
}

// DriverName returns the driver the pool was opened with
func (p *DB) DriverName() string {
	return p.db.DriverName()
}

// Session acquires a dedicated connection from the pool. The caller must
// Close it on every path, normally with defer.
func (p *DB) Session(ctx context.Context) (*Session, error) {
	conn, err := p.db.Connx(ctx)
	if err != nil {
		p.metrics.RecordDBError("session_error")
		p.logger.Error(ctx, "[DB_SESSION_ERROR] Failed to acquire session", logging.Fields{}, err)
		return nil, fmt.Errorf("failed to acquire database session: %w", err)
	}
	return &Session{conn: conn, db: p}, nil
}

// ExecContext executes a command with context and metrics
func (p *DB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := p.metrics.NewTimer(p.metrics.DBQueryDuration.WithLabelValues(queryType))
	defer func() {
		duration := timer.ObserveDuration()
		p.logger.Debug(ctx, "[DB_EXEC] Command executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	result, err := p.db.ExecContext(ctx, p.db.Rebind(query), args...)
	if err != nil {
		p.metrics.RecordDBError("exec_error")
		p.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}

	return result, nil
}

// BeginTx begins a new transaction
func (p *DB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		p.metrics.RecordDBError("transaction_begin_error")
		p.logger.Error(ctx, "[DB_TX_ERROR] Failed to begin transaction", logging.Fields{}, err)
		return nil, err
	}

	return tx, nil
}

// HealthCheck performs a database health check
func (p *DB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// monitorConnectionPool periodically updates connection pool metrics
func (p *DB) monitorConnectionPool(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.recordPoolStats()
		}
	}
}

func (p *DB) recordPoolStats() {
	stats := p.Stats()

	p.metrics.UpdateDBConnectionPool(
		stats.InUse,
		stats.Idle,
		stats.OpenConnections,
	)

	if stats.MaxOpenConnections <= 0 {
		return
	}

	utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections)
	if utilization > 0.8 {
		p.logger.Warn(context.Background(), "[DB_POOL_WARNING] Connection pool utilization high", logging.Fields{
			"in_use":      stats.InUse,
			"idle":        stats.Idle,
			"total":       stats.OpenConnections,
			"max_open":    stats.MaxOpenConnections,
			"utilization": fmt.Sprintf("%.2f%%", utilization*100),
		})
	}
}

// Session is a short-lived, request-scoped connection
type Session struct {
	conn *sqlx.Conn
	db   *DB
}

// Close returns the connection to the pool
func (s *Session) Close() error {
	return s.conn.Close()
}

// GetContext executes a query that must return exactly one row.
// Queries use '?' placeholders and are rebound for the active driver.
func (s *Session) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := s.db.metrics.NewTimer(s.db.metrics.DBQueryDuration.WithLabelValues(queryType))
	defer timer.ObserveDuration()

	err := s.conn.GetContext(ctx, dest, s.db.db.Rebind(query), args...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.db.metrics.RecordDBError("get_error")
		s.db.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}

	return err
}

// SelectContext executes a query that returns multiple rows
func (s *Session) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := s.db.metrics.NewTimer(s.db.metrics.DBQueryDuration.WithLabelValues(queryType))
	defer func() {
		duration := timer.ObserveDuration()
		s.db.logger.Debug(ctx, "[DB_QUERY] Query executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	err := s.conn.SelectContext(ctx, dest, s.db.db.Rebind(query), args...)
	if err != nil {
		s.db.metrics.RecordDBError("select_error")
		s.db.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}

	return nil
}
