package storage

import (
	"context"
	"errors"
	"time"

	"crmbot/internal/domain"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable via DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres only; 0 means pgxpool default
}

// TaskQuery filters tasks. Zero times mean "unbounded"; Limit 0 means no limit.
// Results are ordered by due date ascending.
type TaskQuery struct {
	DueFrom         time.Time // inclusive
	DueTo           time.Time // inclusive unless DueToExclusive
	DueToExclusive  bool
	ExcludeStatuses []domain.TaskStatus
	Limit           int
}

// DealQuery filters deals. Results are ordered newest first.
type DealQuery struct {
	ExcludeStatuses []domain.DealStatus
	Limit           int
}

type SettingsStore interface {
	// FirstSettings returns the authoritative (first) settings row, ok=false when none exists.
	FirstSettings(ctx context.Context) (domain.NotificationSettings, bool, error)
	CreateSettings(ctx context.Context, s domain.NotificationSettings) (domain.NotificationSettings, error)
	UpdateSettings(ctx context.Context, s domain.NotificationSettings) error
}

type TaskReader interface {
	ListTasks(ctx context.Context, q TaskQuery) ([]domain.Task, error)
	CountTasks(ctx context.Context, q TaskQuery) (int, error)
	GetTask(ctx context.Context, id int64) (domain.Task, error)
}

type DealReader interface {
	ListDeals(ctx context.Context, q DealQuery) ([]domain.Deal, error)
	GetDeal(ctx context.Context, id int64) (domain.Deal, error)
}

type ClientReader interface {
	GetClient(ctx context.Context, id int64) (domain.Client, error)
}

// Writer inserts CRM records. The CRM itself owns these tables; the bot only
// writes them through Seed (cmd/bot -seed).
type Writer interface {
	CreateUser(ctx context.Context, u domain.User) (int64, error)
	CreateClient(ctx context.Context, c domain.Client) (int64, error)
	CreateDeal(ctx context.Context, d domain.Deal) (int64, error)
	CreateTask(ctx context.Context, t domain.Task) (int64, error)
}

type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
}

// Store is the full persistence API.
type Store interface {
	SettingsStore
	TaskReader
	DealReader
	ClientReader
	Writer
	DedupStore
	Close() error
}
