package storage

import (
	"context"
	"errors"
	"strings"

	logx "crmbot/pkg/logx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var driverNames = map[string]string{
	"sqlite":     DriverSQLite,
	"sqlite3":    DriverSQLite,
	"postgres":   DriverPostgres,
	"postgresql": DriverPostgres,
	"pgx":        DriverPostgres,
}

// CanonicalDriver maps an accepted driver name or alias to DriverSQLite or
// DriverPostgres.
func CanonicalDriver(name string) (string, bool) {
	d, ok := driverNames[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Open initializes the configured store and applies its schema.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	raw := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if raw == "" || raw == "none" {
		return nil, ErrDisabled
	}
	driver, ok := CanonicalDriver(raw)
	if !ok {
		return nil, errors.New("unknown storage driver: " + raw)
	}
	if driver == DriverPostgres {
		return openPostgres(ctx, cfg, log)
	}
	return openSQLite(ctx, cfg, log)
}
