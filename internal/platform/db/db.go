package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"library-backend/internal/platform/config"
)

// DSN はドライバごとの接続文字列を組み立てる
func DSN(c config.DatabaseConfig) (string, error) {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
			c.Username, c.Password, c.Host, c.Port, c.DBName), nil
	case "postgres", "pgx":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			c.Username, c.Password, c.Host, c.Port, c.DBName), nil
	case "sqlite3":
		return SQLiteDSN(c.Path), nil
	}
	return "", fmt.Errorf("unsupported driver %q", c.Driver)
}

// SQLiteDSN: 書き込みTxは BEGIN IMMEDIATE で開始する（貸出の在庫チェックを直列化するため）
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_journal_mode=WAL&_txlock=immediate", path)
}

func Connect(c config.DatabaseConfig) (*sqlx.DB, error) {
	dsn, err := DSN(c)
	if err != nil {
		return nil, err
	}
	if c.Driver == "sqlite3" {
		if dir := filepath.Dir(c.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}
	return Open(c.Driver, dsn)
}

// Open opens and pings a pool for driver/dsn and applies the pool limits for it.
func Open(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		// SQLite は単一ライター
		db.SetMaxOpenConns(1)
		return db, nil
	}

	// 接続プール（合算がDBの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// ForUpdate returns the row-lock suffix for SELECT on this connection's driver.
// SQLite has no row locks; the immediate transaction already holds the write lock.
func ForUpdate(db sqlx.ExtContext) string {
	if db.DriverName() == "sqlite3" {
		return ""
	}
	return " FOR UPDATE"
}
