package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // The database driver
	"github.com/phuslu/log"
)

// DB is the global database connection.
var DB *sqlx.DB

// InitDB opens the connection, pings it and applies pending migrations.
func InitDB(databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("database URL is not set")
	}

	conn, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	version, dirty, err := RunMigrations(conn)
	if err != nil {
		conn.Close()
		return err
	}

	DB = conn
	log.Info().Uint64("schema_version", uint64(version)).Bool("dirty", dirty).Msg("Database connection established")
	return nil
}
