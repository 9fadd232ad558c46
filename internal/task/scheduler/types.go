package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "cartellino/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Rome"
}

const historySize = 32

type scheduleDef struct {
	id      string
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	stats   *runStats
}

type runStats struct {
	mu       sync.Mutex
	runs     uint64
	failures uint64
	lastErr  string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
	ctx    context.Context
	cancel context.CancelFunc

	hmu     sync.Mutex
	history []HistoryItem
}

type ScheduleInfo struct {
	ID       string
	Name     string
	Spec     string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
	Runs     uint64
	Failures uint64
	LastErr  string
}

// HistoryItem is one finished run.
type HistoryItem struct {
	Name    string
	Started time.Time
	Took    time.Duration
	Err     string
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem
}
