package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// DayLayout is the calendar-day key used for per-day values.
const DayLayout = "2006-01-02"

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// RetainDays bounds how long per-day values live. Redis uses it as key TTL.
	RetainDays int
	Redis      RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Chat is a chat that talked to the bot.
type Chat struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DailyValue is one per-chat, per-day setting.
type DailyValue struct {
	ChatID int64  `json:"chat_id"`
	Key    string `json:"key"`
	Value  string `json:"value"`
	Day    string `json:"day"` // DayLayout
}

// Store is the persistence API used by the tracker and the tools around it.
// Misses are (zero, false, nil).
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	StoreSetting(ctx context.Context, key, value string) error
	Settings(ctx context.Context) (map[string]string, error)

	StoreChat(ctx context.Context, chatID int64, name string) error
	Chats(ctx context.Context) ([]Chat, error)

	GetDaily(ctx context.Context, chatID int64, key string, day time.Time) (string, bool, error)
	StoreDaily(ctx context.Context, chatID int64, key, value string, day time.Time) error
	// DailyHistory returns values for days in [from, to], ordered by day then key.
	DailyHistory(ctx context.Context, chatID int64, from, to time.Time) ([]DailyValue, error)
	// PruneDaily deletes values of days strictly before before.
	PruneDaily(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// DayKey formats t's calendar day in t's own location.
func DayKey(t time.Time) string { return t.Format(DayLayout) }
