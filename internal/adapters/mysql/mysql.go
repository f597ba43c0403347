// Package mysql loads invoice lines from and writes customer values to a
// MySQL or MariaDB database.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"
)

const (
	maxOpenConns    = 10
	connMaxLifetime = 30 * time.Minute
)

// ErrInvalidTable is returned for table names outside [A-Za-z0-9_].
var ErrInvalidTable = errors.New("invalid table name")

var tableName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func checkTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// Open connects to the database named by dsn, which may be a mysql:// or
// mariadb:// URL or a native driver DSN.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	native, err := ToDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", native)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// ToDSN converts dsn to the driver's native form with time parsing in UTC.
func ToDSN(dsn string) (string, error) {
	var cfg *driver.Config
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		cfg = driver.NewConfig()
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		if cfg.User == "" || cfg.Addr == "" || cfg.DBName == "" {
			return "", errors.New("parse dsn: user, host and database are required")
		}
	} else {
		parsed, err := driver.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		cfg = parsed
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.InterpolateParams = true
	return cfg.FormatDSN(), nil
}
