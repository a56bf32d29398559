package scheduler

import (
	"context"
	"sync"
	"time"

	logx "crmbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA name, e.g. "Europe/Moscow"; empty means Local
	// DefaultTimeout applies to jobs registered with timeout 0.
	DefaultTimeout time.Duration
}

// Job is one scheduled unit of work. A returned error is logged and counted.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron expression or "@every <d>"
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// base is cancelled by Stop so in-flight runs observe shutdown.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ScheduleInfo describes a registered schedule. Next/Prev are zero while the
// service is stopped.
type ScheduleInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next"`
	Prev    time.Time     `json:"prev"`
}
