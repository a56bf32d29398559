package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"crmbot/internal/domain"
	logx "crmbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	d   dialect

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, d: sqliteDialect, pruneEvery: 500}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")

	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) FirstSettings(ctx context.Context) (domain.NotificationSettings, bool, error) {
	if s == nil || s.db == nil {
		return domain.NotificationSettings{}, false, ErrDisabled
	}
	st, err := scanSettings(s.db.QueryRowContext(ctx, settingsSelect))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotificationSettings{}, false, nil
	}
	if err != nil {
		return domain.NotificationSettings{}, false, err
	}
	return st, true, nil
}

func (s *sqliteStore) CreateSettings(ctx context.Context, in domain.NotificationSettings) (domain.NotificationSettings, error) {
	if s == nil || s.db == nil {
		return in, ErrDisabled
	}
	args, err := settingsArgs(in)
	if err != nil {
		return in, err
	}
	if err := s.db.QueryRowContext(ctx, s.d.insertSettingsSQL(), args...).Scan(&in.ID); err != nil {
		return in, err
	}
	return in, nil
}

func (s *sqliteStore) UpdateSettings(ctx context.Context, in domain.NotificationSettings) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	args, err := settingsArgs(in)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.d.updateSettingsSQL(), append(args, in.ID)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ListTasks(ctx context.Context, q TaskQuery) ([]domain.Task, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	query, args := s.d.listTasksSQL(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountTasks(ctx context.Context, q TaskQuery) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	query, args := s.d.countTasksSQL(q)
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (s *sqliteStore) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	if s == nil || s.db == nil {
		return domain.Task{}, ErrDisabled
	}
	t, err := scanTask(s.db.QueryRowContext(ctx, s.d.getTaskSQL(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) ListDeals(ctx context.Context, q DealQuery) ([]domain.Deal, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	query, args := s.d.listDealsSQL(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetDeal(ctx context.Context, id int64) (domain.Deal, error) {
	if s == nil || s.db == nil {
		return domain.Deal{}, ErrDisabled
	}
	d, err := scanDeal(s.db.QueryRowContext(ctx, s.d.getDealSQL(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Deal{}, ErrNotFound
	}
	return d, err
}

func (s *sqliteStore) GetClient(ctx context.Context, id int64) (domain.Client, error) {
	if s == nil || s.db == nil {
		return domain.Client{}, ErrDisabled
	}
	c, err := scanClient(s.db.QueryRowContext(ctx, s.d.getClientSQL(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Client{}, ErrNotFound
	}
	return c, err
}

func (s *sqliteStore) CreateUser(ctx context.Context, u domain.User) (int64, error) {
	return s.insert(ctx, s.d.insertUserSQL(), u.Name)
}

func (s *sqliteStore) CreateClient(ctx context.Context, c domain.Client) (int64, error) {
	return s.insert(ctx, s.d.insertClientSQL(), clientArgs(c)...)
}

func (s *sqliteStore) CreateDeal(ctx context.Context, d domain.Deal) (int64, error) {
	return s.insert(ctx, s.d.insertDealSQL(), dealArgs(d)...)
}

func (s *sqliteStore) CreateTask(ctx context.Context, t domain.Task) (int64, error) {
	return s.insert(ctx, s.d.insertTaskSQL(), taskArgs(t)...)
}

func (s *sqliteStore) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var id int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, s.d.putDedupSQL(), key, until.UnixMilli())
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneExpired(pctx); perr != nil {
			s.log.Debug("dedup prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, s.d.getDedupSQL(), key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.d.pruneDedupSQL(), time.Now().UnixMilli())
	return err
}
