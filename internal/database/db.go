package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/config"
)

// ErrStorageUnavailable is returned when MySQL could not be reached within the
// configured number of attempts.
var ErrStorageUnavailable = errors.New("storage unavailable")

// openDB and pingTimeout are seams for tests.
var (
	openDB      = func(dsn string) (*sql.DB, error) { return sql.Open("mysql", dsn) }
	pingTimeout = 5 * time.Second
)

// Open connects to MySQL and verifies the connection.  Each failed ping is
// retried after cfg.DBConnectDelay, up to cfg.DBConnectRetries attempts in
// total.  Only this bootstrap step retries; request-time errors surface to
// the caller immediately.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*sql.DB, error) {
	db, err := openDB(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	attempts := cfg.DBConnectRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.DBConnectDelay
	if delay <= 0 {
		delay = time.Second
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := db.PingContext(pctx); err != nil {
			log.Warn("mysql not ready",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	log.Info("mysql connected", zap.String("host", cfg.DBHost), zap.Int("attempts", attempt))
	return db, nil
}
