// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by checkers built without a dependency.
var ErrNotConfigured = errors.New("dependency not configured")

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DBChecker implements health checking for the Postgres store.
type DBChecker struct {
	db Pinger
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db Pinger) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if d.db == nil {
		return ErrNotConfigured
	}
	return d.db.PingContext(ctx)
}
