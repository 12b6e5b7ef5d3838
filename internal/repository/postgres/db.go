package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// Connect opens a connection pool to the PostgreSQL database. The server may
// start before the database accepts connections, so the ping is retried with
// a doubling backoff.
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	backoff := connectBackoff
	for attempt := 1; ; attempt++ {
		if err = ping(db); err == nil {
			return db, nil
		}
		if attempt == connectAttempts {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("retryIn", backoff).Msg("Postgres not ready")
		time.Sleep(backoff)
		backoff *= 2
	}
	db.Close()
	return nil, fmt.Errorf("postgres ping: %w", err)
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
