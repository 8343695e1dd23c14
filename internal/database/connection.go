package database

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open dials the driver/dsn pair selected by configuration. Callers wrap
// the result in *sqlx.DB where struct-scanning convenience is wanted
// (internal/queue, internal/session); raw *sql.DB is exposed here since
// the plugin host API (ProdHostAPI) needs the database/sql type directly.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping %s: %w", driver, err)
	}
	return db, nil
}
