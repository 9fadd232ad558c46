package config

// Config is the root of cartellino's config file (JSON or YAML).
// Durations are Go duration strings ("10s", "30m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Shift     ShiftConfig     `json:"shift"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	HTTP      HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the chat id that receives log lines when logging.telegram is enabled.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
	// AllowedChatIDs restricts the bot to these chats. Empty means everyone.
	AllowedChatIDs []int64 `json:"allowed_chat_ids,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./cartellino.db" }
type StorageConfig struct {
	Driver      string      `json:"driver"`
	Path        string      `json:"path,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"`
	RetainDays  int         `json:"retain_days,omitempty"`
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// ShiftConfig holds the fallback shift lengths. Values stored with
// "cartellino settings set" win over these.
type ShiftConfig struct {
	WorkTime      string `json:"work_time"`
	LunchTime     string `json:"lunch_time"`
	OvertimeAfter string `json:"overtime_after"`
	// Timezone decides what "today" means for per-day values. Empty is local time.
	Timezone string `json:"timezone,omitempty"`
}

type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	SendTimeout string `json:"send_timeout"`
}

type SchedulerConfig struct {
	Enabled       bool   `json:"enabled"`
	Timezone      string `json:"timezone,omitempty"`
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

// HTTPConfig controls the read-only JSON API. A non-loopback Addr needs a
// Token; clients send it as "Authorization: Bearer <token>".
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/, behind the token.
	Pprof bool `json:"pprof,omitempty"`
}

const (
	DefaultWorkTime      = "07:12"
	DefaultLunchTime     = "00:30"
	DefaultOvertimeAfter = "30m"
	DefaultPruneSchedule = "0 3 * * *"
	DefaultHTTPAddr      = "127.0.0.1:8089"
	DefaultRetainDays    = 90
)

// Default returns the config used when no file is given.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Logging:  LoggingConfig{Level: "info", Console: true},
		Storage:  &StorageConfig{Driver: "sqlite", Path: "./cartellino.db", BusyTimeout: "1s"},
		Shift: ShiftConfig{
			WorkTime:      DefaultWorkTime,
			LunchTime:     DefaultLunchTime,
			OvertimeAfter: DefaultOvertimeAfter,
		},
		Scheduler: SchedulerConfig{Enabled: true, PruneSchedule: DefaultPruneSchedule},
	}
}
