package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crmbot/internal/domain"

	"github.com/shopspring/decimal"
)

// dialect holds the few pieces of SQL that differ between drivers.
// Timestamps are stored as unix milliseconds by both.
type dialect struct {
	ph          func(n int) string
	amountCol   string
	amountParam func(n int) string
}

var sqliteDialect = dialect{
	ph:          func(int) string { return "?" },
	amountCol:   "d.amount",
	amountParam: func(int) string { return "?" },
}

var postgresDialect = dialect{
	ph:          func(n int) string { return "$" + strconv.Itoa(n) },
	amountCol:   "d.amount::text",
	amountParam: func(n int) string { return "$" + strconv.Itoa(n) + "::text::numeric" },
}

type rowScanner interface {
	Scan(dest ...any) error
}

const taskSelect = `SELECT t.id, t.title, t.description, t.due_date, t.status, t.priority,
	u.id, u.name, c.id, c.name, d.id, d.title
FROM tasks t
LEFT JOIN users u ON u.id = t.assignee_id
LEFT JOIN clients c ON c.id = t.client_id
LEFT JOIN deals d ON d.id = t.deal_id`

const settingsSelect = `SELECT id, bot_token, chat_id, is_active, notify_new_clients, notify_new_deals,
	notify_new_tasks, notify_task_deadlines, task_reminder_hours
FROM notification_settings ORDER BY id ASC LIMIT 1`

func (d dialect) taskWhere(q TaskQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, expr+" "+d.ph(len(args)))
	}
	if !q.DueFrom.IsZero() {
		add("t.due_date >=", q.DueFrom.UnixMilli())
	}
	if !q.DueTo.IsZero() {
		if q.DueToExclusive {
			add("t.due_date <", q.DueTo.UnixMilli())
		} else {
			add("t.due_date <=", q.DueTo.UnixMilli())
		}
	}
	if len(q.ExcludeStatuses) > 0 {
		phs := make([]string, 0, len(q.ExcludeStatuses))
		for _, s := range q.ExcludeStatuses {
			args = append(args, string(s))
			phs = append(phs, d.ph(len(args)))
		}
		conds = append(conds, "t.status NOT IN ("+strings.Join(phs, ", ")+")")
	}
	if len(conds) == 0 {
		return "", args
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

func (d dialect) listTasksSQL(q TaskQuery) (string, []any) {
	where, args := d.taskWhere(q)
	s := taskSelect + where + "\nORDER BY t.due_date ASC, t.id ASC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		s += " LIMIT " + d.ph(len(args))
	}
	return s, args
}

func (d dialect) countTasksSQL(q TaskQuery) (string, []any) {
	where, args := d.taskWhere(q)
	return "SELECT COUNT(*) FROM tasks t" + where, args
}

func (d dialect) getTaskSQL() string {
	return taskSelect + "\nWHERE t.id = " + d.ph(1)
}

func (d dialect) dealSelect() string {
	return `SELECT d.id, d.title, ` + d.amountCol + `, d.currency, d.status, d.estimated_closing_date,
	c.id, c.name, m.id, m.name
FROM deals d
LEFT JOIN clients c ON c.id = d.client_id
LEFT JOIN users m ON m.id = d.manager_id`
}

func (d dialect) listDealsSQL(q DealQuery) (string, []any) {
	var args []any
	s := d.dealSelect()
	if len(q.ExcludeStatuses) > 0 {
		phs := make([]string, 0, len(q.ExcludeStatuses))
		for _, st := range q.ExcludeStatuses {
			args = append(args, string(st))
			phs = append(phs, d.ph(len(args)))
		}
		s += "\nWHERE d.status NOT IN (" + strings.Join(phs, ", ") + ")"
	}
	s += "\nORDER BY d.id DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		s += " LIMIT " + d.ph(len(args))
	}
	return s, args
}

func (d dialect) getDealSQL() string {
	return d.dealSelect() + "\nWHERE d.id = " + d.ph(1)
}

func (d dialect) getClientSQL() string {
	return `SELECT c.id, c.name, c.company, c.email, c.phone, c.created_at, m.id, m.name
FROM clients c
LEFT JOIN users m ON m.id = c.manager_id
WHERE c.id = ` + d.ph(1)
}

func (d dialect) insertSettingsSQL() string {
	return fmt.Sprintf(`INSERT INTO notification_settings(bot_token, chat_id, is_active, notify_new_clients,
	notify_new_deals, notify_new_tasks, notify_task_deadlines, task_reminder_hours)
VALUES(%s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8))
}

func (d dialect) updateSettingsSQL() string {
	return fmt.Sprintf(`UPDATE notification_settings SET bot_token = %s, chat_id = %s, is_active = %s,
	notify_new_clients = %s, notify_new_deals = %s, notify_new_tasks = %s,
	notify_task_deadlines = %s, task_reminder_hours = %s
WHERE id = %s`,
		d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8), d.ph(9))
}

func (d dialect) insertUserSQL() string {
	return "INSERT INTO users(name) VALUES(" + d.ph(1) + ") RETURNING id"
}

func (d dialect) insertClientSQL() string {
	return fmt.Sprintf(`INSERT INTO clients(name, company, email, phone, manager_id, created_at)
VALUES(%s, %s, %s, %s, %s, %s) RETURNING id`, d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6))
}

func (d dialect) insertDealSQL() string {
	return fmt.Sprintf(`INSERT INTO deals(title, amount, currency, status, client_id, manager_id, estimated_closing_date)
VALUES(%s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		d.ph(1), d.amountParam(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7))
}

func (d dialect) insertTaskSQL() string {
	return fmt.Sprintf(`INSERT INTO tasks(title, description, due_date, status, priority, assignee_id, client_id, deal_id)
VALUES(%s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8))
}

func (d dialect) putDedupSQL() string {
	return fmt.Sprintf(`INSERT INTO dedup(key, expires_at) VALUES(%s, %s)
ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at`, d.ph(1), d.ph(2))
}

func (d dialect) getDedupSQL() string {
	return "SELECT expires_at FROM dedup WHERE key = " + d.ph(1)
}

func (d dialect) pruneDedupSQL() string {
	return "DELETE FROM dedup WHERE expires_at < " + d.ph(1)
}

func settingsArgs(s domain.NotificationSettings) ([]any, error) {
	hours, err := encodeHours(s.TaskReminderHours)
	if err != nil {
		return nil, err
	}
	return []any{
		s.BotToken, s.ChatID, s.IsActive, s.NotifyNewClients, s.NotifyNewDeals,
		s.NotifyNewTasks, s.NotifyTaskDeadlines, hours,
	}, nil
}

func taskArgs(t domain.Task) []any {
	return []any{
		t.Title, t.Description, t.DueDate.UnixMilli(), string(t.Status), string(t.Priority),
		userID(t.Assignee), clientID(t.Client), dealID(t.Deal),
	}
}

func dealArgs(d domain.Deal) []any {
	var closing any
	if d.EstimatedClosingDate != nil {
		closing = d.EstimatedClosingDate.UnixMilli()
	}
	return []any{
		d.Title, d.Amount.String(), d.Currency, string(d.Status),
		clientID(d.Client), userID(d.Manager), closing,
	}
}

func clientArgs(c domain.Client) []any {
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return []any{c.Name, c.Company, c.Email, c.Phone, userID(c.Manager), created.UnixMilli()}
}

func scanSettings(row rowScanner) (domain.NotificationSettings, error) {
	var (
		s     domain.NotificationSettings
		hours string
	)
	if err := row.Scan(&s.ID, &s.BotToken, &s.ChatID, &s.IsActive, &s.NotifyNewClients,
		&s.NotifyNewDeals, &s.NotifyNewTasks, &s.NotifyTaskDeadlines, &hours); err != nil {
		return domain.NotificationSettings{}, err
	}
	h, err := decodeHours(hours)
	if err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("settings %d: %w", s.ID, err)
	}
	s.TaskReminderHours = h
	return s, nil
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t                domain.Task
		due              int64
		status, priority string
		uid, cid, did    *int64
		uname, cname     *string
		dtitle           *string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &due, &status, &priority,
		&uid, &uname, &cid, &cname, &did, &dtitle); err != nil {
		return domain.Task{}, err
	}
	t.DueDate = time.UnixMilli(due)
	t.Status = domain.TaskStatus(status)
	t.Priority = domain.ParsePriority(priority)
	if uid != nil {
		t.Assignee = &domain.UserRef{ID: *uid, Name: deref(uname)}
	}
	if cid != nil {
		t.Client = &domain.ClientRef{ID: *cid, Name: deref(cname)}
	}
	if did != nil {
		t.Deal = &domain.DealRef{ID: *did, Title: deref(dtitle)}
	}
	return t, nil
}

func scanDeal(row rowScanner) (domain.Deal, error) {
	var (
		d              domain.Deal
		amount, status string
		closing        *int64
		cid, mid       *int64
		cname, mname   *string
	)
	if err := row.Scan(&d.ID, &d.Title, &amount, &d.Currency, &status, &closing,
		&cid, &cname, &mid, &mname); err != nil {
		return domain.Deal{}, err
	}
	amt, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return domain.Deal{}, fmt.Errorf("deal %d amount %q: %w", d.ID, amount, err)
	}
	d.Amount = amt
	d.Status = domain.DealStatus(status)
	if closing != nil {
		t := time.UnixMilli(*closing)
		d.EstimatedClosingDate = &t
	}
	if cid != nil {
		d.Client = &domain.ClientRef{ID: *cid, Name: deref(cname)}
	}
	if mid != nil {
		d.Manager = &domain.UserRef{ID: *mid, Name: deref(mname)}
	}
	return d, nil
}

func scanClient(row rowScanner) (domain.Client, error) {
	var (
		c       domain.Client
		created int64
		mid     *int64
		mname   *string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Company, &c.Email, &c.Phone, &created, &mid, &mname); err != nil {
		return domain.Client{}, err
	}
	c.CreatedAt = time.UnixMilli(created)
	if mid != nil {
		c.Manager = &domain.UserRef{ID: *mid, Name: deref(mname)}
	}
	return c, nil
}

func encodeHours(h []int) (string, error) {
	if h == nil {
		h = []int{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeHours(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	var h []int
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return nil, fmt.Errorf("task_reminder_hours: %w", err)
	}
	return h, nil
}

func nullID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

func userID(r *domain.UserRef) any {
	if r == nil {
		return nil
	}
	return nullID(r.ID)
}

func clientID(r *domain.ClientRef) any {
	if r == nil {
		return nil
	}
	return nullID(r.ID)
}

func dealID(r *domain.DealRef) any {
	if r == nil {
		return nil
	}
	return nullID(r.ID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
