package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"crmbot/internal/domain"

	"github.com/shopspring/decimal"
	yaml "go.yaml.in/yaml/v3"
)

// SeedFile is a YAML fixture of CRM records for a standalone database
// (demos, local runs without the CRM). Records reference each other by key.
//
// Task due dates and deal closing dates accept RFC 3339 ("2026-10-17T15:00:00+03:00"),
// a date ("2026-11-01") or an offset from now ("+24h", "-30m").
type SeedFile struct {
	Users []struct {
		Key  string `yaml:"key"`
		Name string `yaml:"name"`
	} `yaml:"users"`
	Clients []struct {
		Key     string `yaml:"key"`
		Name    string `yaml:"name"`
		Company string `yaml:"company"`
		Email   string `yaml:"email"`
		Phone   string `yaml:"phone"`
		Manager string `yaml:"manager"`
	} `yaml:"clients"`
	Deals []struct {
		Key      string `yaml:"key"`
		Title    string `yaml:"title"`
		Amount   string `yaml:"amount"`
		Currency string `yaml:"currency"`
		Status   string `yaml:"status"`
		Client   string `yaml:"client"`
		Manager  string `yaml:"manager"`
		Closing  string `yaml:"closing"`
	} `yaml:"deals"`
	Tasks []struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Due         string `yaml:"due"`
		Status      string `yaml:"status"`
		Priority    string `yaml:"priority"`
		Assignee    string `yaml:"assignee"`
		Client      string `yaml:"client"`
		Deal        string `yaml:"deal"`
	} `yaml:"tasks"`
}

// SeedReport counts inserted records.
type SeedReport struct {
	Users, Clients, Deals, Tasks int
}

func LoadSeedFile(path string) (SeedFile, error) {
	var f SeedFile
	b, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return f, fmt.Errorf("seed %s: %w", path, err)
	}
	return f, nil
}

// Seed inserts f in dependency order. It stops at the first error; records
// inserted before it stay.
func Seed(ctx context.Context, w Writer, f SeedFile, now time.Time) (SeedReport, error) {
	var rep SeedReport
	users := map[string]*domain.UserRef{}
	clients := map[string]*domain.ClientRef{}
	deals := map[string]*domain.DealRef{}

	for _, u := range f.Users {
		id, err := w.CreateUser(ctx, domain.User{Name: u.Name})
		if err != nil {
			return rep, fmt.Errorf("user %q: %w", u.Key, err)
		}
		users[u.Key] = &domain.UserRef{ID: id, Name: u.Name}
		rep.Users++
	}

	for _, c := range f.Clients {
		mgr, err := lookup(users, "manager", c.Manager)
		if err != nil {
			return rep, fmt.Errorf("client %q: %w", c.Key, err)
		}
		id, err := w.CreateClient(ctx, domain.Client{
			Name: c.Name, Company: c.Company, Email: c.Email, Phone: c.Phone,
			Manager: mgr, CreatedAt: now,
		})
		if err != nil {
			return rep, fmt.Errorf("client %q: %w", c.Key, err)
		}
		clients[c.Key] = &domain.ClientRef{ID: id, Name: c.Name}
		rep.Clients++
	}

	for _, d := range f.Deals {
		deal := domain.Deal{Title: d.Title, Currency: d.Currency, Status: domain.DealStatus(strings.ToUpper(d.Status))}
		if deal.Status == "" {
			deal.Status = domain.DealNew
		}
		if d.Amount != "" {
			amt, err := decimal.NewFromString(d.Amount)
			if err != nil {
				return rep, fmt.Errorf("deal %q: amount: %w", d.Key, err)
			}
			deal.Amount = amt
		}
		var err error
		if deal.Client, err = lookup(clients, "client", d.Client); err != nil {
			return rep, fmt.Errorf("deal %q: %w", d.Key, err)
		}
		if deal.Manager, err = lookup(users, "manager", d.Manager); err != nil {
			return rep, fmt.Errorf("deal %q: %w", d.Key, err)
		}
		if d.Closing != "" {
			at, err := seedTime(d.Closing, now)
			if err != nil {
				return rep, fmt.Errorf("deal %q: closing: %w", d.Key, err)
			}
			deal.EstimatedClosingDate = &at
		}
		id, err := w.CreateDeal(ctx, deal)
		if err != nil {
			return rep, fmt.Errorf("deal %q: %w", d.Key, err)
		}
		deals[d.Key] = &domain.DealRef{ID: id, Title: d.Title}
		rep.Deals++
	}

	for i, t := range f.Tasks {
		due, err := seedTime(t.Due, now)
		if err != nil {
			return rep, fmt.Errorf("task %d %q: due: %w", i, t.Title, err)
		}
		task := domain.Task{
			Title:       t.Title,
			Description: t.Description,
			DueDate:     due,
			Status:      domain.TaskStatus(strings.ToUpper(t.Status)),
			Priority:    domain.ParsePriority(strings.ToUpper(t.Priority)),
		}
		if task.Status == "" {
			task.Status = domain.TaskNew
		}
		if task.Assignee, err = lookup(users, "assignee", t.Assignee); err != nil {
			return rep, fmt.Errorf("task %d %q: %w", i, t.Title, err)
		}
		if task.Client, err = lookup(clients, "client", t.Client); err != nil {
			return rep, fmt.Errorf("task %d %q: %w", i, t.Title, err)
		}
		if task.Deal, err = lookup(deals, "deal", t.Deal); err != nil {
			return rep, fmt.Errorf("task %d %q: %w", i, t.Title, err)
		}
		if _, err := w.CreateTask(ctx, task); err != nil {
			return rep, fmt.Errorf("task %d %q: %w", i, t.Title, err)
		}
		rep.Tasks++
	}
	return rep, nil
}

// lookup resolves an optional key; empty means no reference.
func lookup[T any](m map[string]*T, what, key string) (*T, error) {
	if key == "" {
		return nil, nil
	}
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("unknown %s %q", what, key)
	}
	return v, nil
}

func seedTime(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "+") || strings.HasPrefix(raw, "-") {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, now.Location())
}
