package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"cartellino/internal/shift"
	logx "cartellino/pkg/logx"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDecodeYAMLAndJSON(t *testing.T) {
	yml := `
telegram:
  token: abc
  poll_timeout: 15s
  allowed_chat_ids: [1, 2]
shift:
  work_time: "08:00"
  lunch_time: "01:00"
  overtime_after: 45m
storage:
  driver: redis
  redis:
    addr: 127.0.0.1:6379
`
	cfg, err := Decode("cfg.yaml", []byte(yml))
	if err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if cfg.Telegram.PollTimeout != "15s" || cfg.Shift.WorkTime != "08:00" || cfg.Storage.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if !slices.Equal(cfg.Telegram.AllowedChatIDs, []int64{1, 2}) {
		t.Fatalf("allowed_chat_ids=%v", cfg.Telegram.AllowedChatIDs)
	}

	js := `{"shift":{"work_time":"07:12","lunch_time":"00:30"}}`
	for _, name := range []string{"cfg.json", "cfg.conf"} {
		cfg, err = Decode(name, []byte(js))
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if cfg.Shift.LunchTime != "00:30" {
			t.Fatalf("%s: lunch=%q", name, cfg.Shift.LunchTime)
		}
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	if _, err := Decode("cfg.json", []byte(`{"nope":1}`)); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := Decode("cfg.json", []byte(`{} {}`)); err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("expected trailing data error, got %v", err)
	}
	if _, err := Decode("cfg.yaml", []byte("shift:\n  bogus: 1\n")); err == nil {
		t.Fatalf("expected unknown nested field error")
	}
}

func TestDecodeAppliesEnv(t *testing.T) {
	t.Setenv(EnvBotToken, "from-env")
	t.Setenv(EnvDBPath, "/tmp/x.db")
	cfg, err := Decode("cfg.yaml", []byte("telegram:\n  token: from-file\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token=%q", cfg.Telegram.Token)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/x.db" {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
}

func TestLoadDotEnvSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".env", "CARTELLINO_TEST_VAR=hello\n")
	t.Setenv("CARTELLINO_TEST_VAR", "")
	os.Unsetenv("CARTELLINO_TEST_VAR")
	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CARTELLINO_TEST_VAR"); got != "hello" {
		t.Fatalf("var=%q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := Default()
	bad.Shift.WorkTime = "7:12"
	bad.Storage.Driver = "mongo"
	bad.Scheduler.PruneSchedule = "not a cron"
	bad.Shift.Timezone = "Mars/Olympus"
	err := bad.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	if !errors.Is(err, shift.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat in %v", err)
	}
	for _, want := range []string{"shift.work_time", "storage.driver", "scheduler.prune_schedule", "shift.timezone"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Telegram.Token = "secret-token"
	b.Shift.WorkTime = "08:00"
	b.HTTP.Enabled = true

	changed, attrs := SummarizeConfigChange(a, b)
	if !slices.Equal(changed, []string{"http", "shift", "telegram"}) {
		t.Fatalf("changed=%v", changed)
	}
	var buf bytes.Buffer
	logx.NewConsoleTo(&buf, "debug").Info("config changed", attrs...)
	if strings.Contains(buf.String(), "secret-token") {
		t.Fatalf("token leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "token_changed") {
		t.Fatalf("missing token_changed: %s", buf.String())
	}

	changed, _ = SummarizeConfigChange(a, Default())
	if len(changed) != 0 {
		t.Fatalf("expected no change, got %v", changed)
	}
}

func TestManagerWatchPublishesReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", "shift:\n  work_time: \"07:12\"\n")

	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "config.yaml", "shift:\n  work_time: \"08:00\"\n")

	select {
	case cfg := <-sub:
		if cfg.Shift.WorkTime != "08:00" {
			t.Fatalf("work_time=%q", cfg.Shift.WorkTime)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}
	if m.Get().Shift.WorkTime != "08:00" {
		t.Fatalf("Get not updated")
	}

	cancel()
	<-done
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", "shift:\n  work_time: \"07:12\"\n")
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)

	writeFile(t, dir, "config.yaml", "shift:\n  work_time: \"99:00\"\n")
	m.reload(context.Background())
	select {
	case <-sub:
		t.Fatalf("invalid config published")
	default:
	}

	m.SetValidator(func(context.Context, *Config) error { return errors.New("no") })
	writeFile(t, dir, "config.yaml", "shift:\n  work_time: \"09:00\"\n")
	m.reload(context.Background())
	select {
	case <-sub:
		t.Fatalf("validator rejection ignored")
	default:
	}
	if m.Get().Shift.WorkTime != "07:12" {
		t.Fatalf("config changed: %q", m.Get().Shift.WorkTime)
	}
}
