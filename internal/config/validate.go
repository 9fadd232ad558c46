package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"cartellino/internal/shift"
)

// Validate checks values that would otherwise fail later at runtime. Empty
// optional fields are fine; defaults apply where they are read.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout)
	add(err)
	if g := strings.TrimSpace(c.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			add(fmt.Errorf("telegram.group_log: not a chat id: %q", g))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.Telegram.RatePerSec < 0 {
		add(errors.New("logging.telegram.rate_per_sec: must be >= 0"))
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory", "sqlite", "redis":
		default:
			add(fmt.Errorf("storage.driver: unsupported %q", s.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
		if s.RetainDays < 0 {
			add(errors.New("storage.retain_days: must be >= 0"))
		}
		if s.Redis.DB < 0 {
			add(errors.New("storage.redis.db: must be >= 0"))
		}
	}

	if w := strings.TrimSpace(c.Shift.WorkTime); w != "" {
		if _, err := shift.Parse(w); err != nil {
			add(fmt.Errorf("shift.work_time: %w", err))
		}
	}
	if l := strings.TrimSpace(c.Shift.LunchTime); l != "" {
		if _, err := shift.Parse(l); err != nil {
			add(fmt.Errorf("shift.lunch_time: %w", err))
		}
	}
	_, err = ParseDurationField("shift.overtime_after", c.Shift.OvertimeAfter)
	add(err)
	if _, err := LoadLocation(c.Shift.Timezone); err != nil {
		add(fmt.Errorf("shift.timezone: %w", err))
	}

	if n := c.Notifier; n != nil {
		if n.RatePerSec < 0 {
			add(errors.New("notifier.rate_per_sec: must be >= 0"))
		}
		_, err := ParseDurationField("notifier.send_timeout", n.SendTimeout)
		add(err)
	}

	if _, err := LoadLocation(c.Scheduler.Timezone); err != nil {
		add(fmt.Errorf("scheduler.timezone: %w", err))
	}
	if spec := strings.TrimSpace(c.Scheduler.PruneSchedule); spec != "" {
		p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := p.Parse(spec); err != nil {
			add(fmt.Errorf("scheduler.prune_schedule: %w", err))
		}
	}

	if c.HTTP.Enabled {
		if a := strings.TrimSpace(c.HTTP.Addr); a != "" {
			if _, _, err := net.SplitHostPort(a); err != nil {
				add(fmt.Errorf("http.addr: %w", err))
			}
		}
	}

	return errors.Join(errs...)
}
