package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLConfig configures the connection pool.
type MySQLConfig struct {
	// DSN in go-sql-driver form, e.g. "user:pass@tcp(host:3306)/codearena".
	// parseTime and UTC are forced regardless of what the DSN says.
	DSN                string        `yaml:"dsn"`
	MaxOpenConnections int           `yaml:"maxOpenConnections"`
	MaxIdleConnections int           `yaml:"maxIdleConnections"`
	ConnMaxLifetime    time.Duration `yaml:"connMaxLifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"connMaxIdleTime"`
	PingTimeout        time.Duration `yaml:"pingTimeout"`
}

func (c MySQLConfig) withDefaults() MySQLConfig {
	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = 25
	}
	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
	return c
}

// driverConfig parses the DSN and pins the options scanning relies on:
// DATETIME columns scan into time.Time in UTC.
func (c MySQLConfig) driverConfig() (*mysql.Config, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}
	dc, err := mysql.ParseDSN(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	dc.ParseTime = true
	dc.Loc = time.UTC
	return dc, nil
}

// MySQL is the Database used in production.
type MySQL struct {
	conn
	db *sql.DB
}

// NewMySQLWithConfig opens the pool and pings it once.
func NewMySQLWithConfig(config *MySQLConfig) (*MySQL, error) {
	if config == nil {
		return nil, fmt.Errorf("mysql config is required")
	}
	cfg := config.withDefaults()
	dc, err := cfg.driverConfig()
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(dc)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	sqlDB := sql.OpenDB(connector)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", dc.Addr, err)
	}
	return &MySQL{conn: conn{src: sqlDB}, db: sqlDB}, nil
}

// Transaction commits when fn returns nil and rolls back otherwise. A panic
// in fn rolls back and is re-raised.
func (m *MySQL) Transaction(ctx context.Context, fn func(tx Transaction) error) (err error) {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &mysqlTx{conn: conn{src: sqlTx}, tx: sqlTx}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (m *MySQL) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQL) Close() error {
	return m.db.Close()
}

type mysqlTx struct {
	conn
	tx *sql.Tx
}

func (t *mysqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *mysqlTx) Rollback() error {
	return t.tx.Rollback()
}

// sqlSource is the subset shared by *sql.DB and *sql.Tx.
type sqlSource interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// conn adapts a sqlSource to Querier.
type conn struct {
	src sqlSource
}

func (c conn) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := c.src.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows, nil
}

// QueryRow defers errors to Scan, where sql.ErrNoRows stays matchable.
func (c conn) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return c.src.QueryRowContext(ctx, query, args...)
}

func (c conn) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	res, err := c.src.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	return res, nil
}

var (
	_ Database    = (*MySQL)(nil)
	_ Transaction = (*mysqlTx)(nil)
)
