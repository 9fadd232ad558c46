package app

import (
	"strconv"
	"strings"
	"time"

	"cartellino/internal/bot"
	"cartellino/internal/config"
	"cartellino/internal/httpapi"
	"cartellino/internal/notifier"
	"cartellino/internal/task/scheduler"
	"cartellino/internal/tracker"
	telegram "cartellino/internal/transport/telegram/adapter"
	logx "cartellino/pkg/logx"
)

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat returns the chat id of telegram.group_log, or 0.
func groupLogChat(cfg *config.Config) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{}, nil
	}
	timeout, err := config.ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{RatePerSec: cfg.Notifier.RatePerSec, SendTimeout: timeout}, nil
}

// TrackerConfig maps the shift section. Empty values fall back to the
// tracker's defaults.
func TrackerConfig(cfg *config.Config) (tracker.Config, error) {
	after, err := config.ParseDurationField("shift.overtime_after", cfg.Shift.OvertimeAfter)
	if err != nil {
		return tracker.Config{}, err
	}
	loc, err := config.LoadLocation(cfg.Shift.Timezone)
	if err != nil {
		return tracker.Config{}, err
	}
	return tracker.Config{
		WorkTime:      strings.TrimSpace(cfg.Shift.WorkTime),
		LunchTime:     strings.TrimSpace(cfg.Shift.LunchTime),
		OvertimeAfter: after,
		Location:      loc,
	}, nil
}

func mapBotConfig(cfg *config.Config) bot.Config {
	return bot.Config{AllowedChatIDs: cfg.Telegram.AllowedChatIDs}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	return httpapi.Config{
		Enabled:      cfg.HTTP.Enabled,
		Addr:         cfg.HTTP.Addr,
		Token:        cfg.HTTP.Token,
		Pprof:        cfg.HTTP.Pprof,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}
}

func pruneSchedule(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Scheduler.PruneSchedule); s != "" {
		return s
	}
	return config.DefaultPruneSchedule
}

func retainDays(cfg *config.Config) int {
	if cfg.Storage != nil && cfg.Storage.RetainDays > 0 {
		return cfg.Storage.RetainDays
	}
	return config.DefaultRetainDays
}
