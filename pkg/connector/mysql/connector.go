// Package mysql connects to the relational store and manages the working
// database the migrator writes into.
package mysql

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/config"
	"github.com/ajitpratap0/mongobridge/pkg/connector/base"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

const (
	driverName = "mysql"

	// accessDeniedCode is ER_ACCESS_DENIED_ERROR
	accessDeniedCode = 1045
	// unknownDatabaseCode is ER_BAD_DB_ERROR
	unknownDatabaseCode = 1049
)

// Connector owns one connection pool to the relational store
type Connector struct {
	cfg      config.MySQLConfig
	timeouts config.TimeoutConfig
	retry    *base.RetryPolicy
	logger   *zap.Logger

	mu       sync.Mutex
	db       *sql.DB
	database string
}

// New creates an unconnected connector
func New(cfg *config.Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mysql"))
	return &Connector{
		cfg:      cfg.MySQL,
		timeouts: cfg.Timeouts,
		retry:    base.RetryPolicyFromConfig(cfg.Reliability, logger),
		logger:   logger,
	}
}

// DSN formats the driver connection string for database, which may be empty.
func DSN(cfg config.MySQLConfig, database string, timeout time.Duration) string {
	dc := gomysql.NewConfig()
	dc.User = cfg.Username
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dc.DBName = database
	dc.ParseTime = true
	dc.Collation = "utf8mb4_unicode_ci"
	dc.Timeout = timeout
	if cfg.TLS {
		dc.TLSConfig = "true"
	}
	return dc.FormatDSN()
}

// Connect opens the pool without selecting a database and pings it.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}
	if c.cfg.Host == "" || c.cfg.Port <= 0 {
		return errors.New(errors.ErrorTypeConfig, "mysql.host and mysql.port are required")
	}
	return c.openLocked(ctx, "")
}

func (c *Connector) openLocked(ctx context.Context, database string) error {
	start := time.Now()
	db, err := sql.Open(driverName, DSN(c.cfg, database, c.timeouts.Connection))
	if err != nil {
		c.logger.Error("invalid relational store settings", zap.Error(err))
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to open relational store")
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	err = c.retry.ExecuteWithCondition(ctx, func() error {
		return classify(c.ping(ctx, db))
	}, errors.IsRetryable)
	if err != nil {
		c.logger.Error("relational store connection failed",
			zap.String("host", c.cfg.Host), zap.Int("port", c.cfg.Port), zap.Error(err))
		_ = db.Close()
		return err
	}

	c.db = db
	c.database = database
	c.logger.Info("relational store connection established",
		zap.String("database", database),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (c *Connector) ping(ctx context.Context, db *sql.DB) error {
	if c.timeouts.Connection > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeouts.Connection)
		defer cancel()
	}
	return db.PingContext(ctx)
}

// classify maps driver errors onto the error taxonomy
func classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case accessDeniedCode:
			return errors.Wrap(err, errors.ErrorTypeAuthentication, "relational store rejected credentials")
		case unknownDatabaseCode:
			return errors.Wrap(err, errors.ErrorTypeNotFound, "unknown database")
		}
		return errors.Wrap(err, errors.ErrorTypeQuery, "relational store refused the connection")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "relational store ping timed out")
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, "relational store unreachable")
}

// Connected reports whether a pool is open
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

// Database returns the selected database, empty before SelectDatabase
func (c *Connector) Database() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.database
}

// DB returns the live pool
func (c *Connector) DB() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, errors.New(errors.ErrorTypeConnection, "no active relational store connection")
	}
	return c.db, nil
}

// CreateDatabase creates name unless it exists
func (c *Connector) CreateDatabase(ctx context.Context, name string) error {
	quoted, err := QuoteIdent(name)
	if err != nil {
		return err
	}
	db, err := c.DB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+quoted); err != nil {
		c.logger.Error("failed to create database", zap.String("database", name), zap.Error(err))
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to create database").WithDetail("database", name)
	}
	c.logger.Info("database ready", zap.String("database", name))
	return nil
}

// SelectDatabase makes name the working database. The pool is reopened
// with name in the DSN so every pooled connection uses it.
func (c *Connector) SelectDatabase(ctx context.Context, name string) error {
	if err := ValidIdent(name); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return errors.New(errors.ErrorTypeConnection, "no active relational store connection")
	}
	if c.database == name {
		return nil
	}

	old := c.db
	if err := c.openLocked(ctx, name); err != nil {
		return err
	}
	if err := old.Close(); err != nil {
		c.logger.Warn("error closing previous pool", zap.Error(err))
	}
	return nil
}

// Close closes the pool. It is a no-op when not connected.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.database = ""
	if err != nil {
		c.logger.Warn("error closing relational store connection", zap.Error(err))
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close relational store connection")
	}
	c.logger.Info("relational store connection closed")
	return nil
}
