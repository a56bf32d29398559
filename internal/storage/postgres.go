package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"crmbot/internal/domain"
	logx "crmbot/pkg/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
	d    dialect
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	st := &pgStore{pool: pool, log: log, d: postgresDialect}
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", "postgres"), logx.String("host", pcfg.ConnConfig.Host))
	return st, nil
}

func (s *pgStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/postgres.sql")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, string(b))
	return err
}

func (s *pgStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *pgStore) FirstSettings(ctx context.Context) (domain.NotificationSettings, bool, error) {
	st, err := scanSettings(s.pool.QueryRow(ctx, settingsSelect))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotificationSettings{}, false, nil
	}
	if err != nil {
		return domain.NotificationSettings{}, false, err
	}
	return st, true, nil
}

func (s *pgStore) CreateSettings(ctx context.Context, in domain.NotificationSettings) (domain.NotificationSettings, error) {
	args, err := settingsArgs(in)
	if err != nil {
		return in, err
	}
	if err := s.pool.QueryRow(ctx, s.d.insertSettingsSQL(), args...).Scan(&in.ID); err != nil {
		return in, err
	}
	return in, nil
}

func (s *pgStore) UpdateSettings(ctx context.Context, in domain.NotificationSettings) error {
	args, err := settingsArgs(in)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, s.d.updateSettingsSQL(), append(args, in.ID)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) ListTasks(ctx context.Context, q TaskQuery) ([]domain.Task, error) {
	query, args := s.d.listTasksSQL(q)
	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *pgStore) CountTasks(ctx context.Context, q TaskQuery) (int, error) {
	query, args := s.d.countTasksSQL(q)
	var n int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&n)
	return int(n), err
}

func (s *pgStore) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, s.d.getTaskSQL(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	return t, err
}

func (s *pgStore) ListDeals(ctx context.Context, q DealQuery) ([]domain.Deal, error) {
	query, args := s.d.listDealsSQL(q)
	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *pgStore) GetDeal(ctx context.Context, id int64) (domain.Deal, error) {
	d, err := scanDeal(s.pool.QueryRow(ctx, s.d.getDealSQL(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deal{}, ErrNotFound
	}
	return d, err
}

func (s *pgStore) GetClient(ctx context.Context, id int64) (domain.Client, error) {
	c, err := scanClient(s.pool.QueryRow(ctx, s.d.getClientSQL(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Client{}, ErrNotFound
	}
	return c, err
}

func (s *pgStore) CreateUser(ctx context.Context, u domain.User) (int64, error) {
	return s.insert(ctx, s.d.insertUserSQL(), u.Name)
}

func (s *pgStore) CreateClient(ctx context.Context, c domain.Client) (int64, error) {
	return s.insert(ctx, s.d.insertClientSQL(), clientArgs(c)...)
}

func (s *pgStore) CreateDeal(ctx context.Context, d domain.Deal) (int64, error) {
	return s.insert(ctx, s.d.insertDealSQL(), dealArgs(d)...)
}

func (s *pgStore) CreateTask(ctx context.Context, t domain.Task) (int64, error) {
	return s.insert(ctx, s.d.insertTaskSQL(), taskArgs(t)...)
}

func (s *pgStore) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&id)
	return id, err
}

func (s *pgStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, s.d.putDedupSQL(), key, until.UnixMilli())
	return err
}

func (s *pgStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.pool.QueryRow(ctx, s.d.getDedupSQL(), key).Scan(&ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}
