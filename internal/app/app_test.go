package app

import (
	"context"
	"testing"
	"time"

	"cartellino/internal/config"
	"cartellino/internal/eventbus"
	"cartellino/internal/storage"
	"cartellino/internal/task/scheduler"
	logx "cartellino/pkg/logx"
)

func TestStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		in      *config.StorageConfig
		driver  string
		enabled bool
		wantErr bool
	}{
		{name: "missing section", in: nil},
		{name: "none", in: &config.StorageConfig{Driver: "none"}},
		{name: "memory", in: &config.StorageConfig{Driver: "memory"}, driver: "memory", enabled: true},
		{name: "sqlite", in: &config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "2s"}, driver: "sqlite", enabled: true},
		{name: "sqlite without path", in: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "sqlite bad timeout", in: &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "soon"}, wantErr: true},
		{name: "redis", in: &config.StorageConfig{Driver: "redis", Redis: config.RedisConfig{Addr: "127.0.0.1:6379", DB: 2}}, driver: "redis", enabled: true},
		{name: "redis without addr", in: &config.StorageConfig{Driver: "redis"}, wantErr: true},
		{name: "unknown", in: &config.StorageConfig{Driver: "bolt"}, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			sc, enabled, err := StorageConfig(&config.Config{Storage: tc.in})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", sc)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enabled != tc.enabled || sc.Driver != tc.driver {
				t.Fatalf("got driver=%q enabled=%v, want %q %v", sc.Driver, enabled, tc.driver, tc.enabled)
			}
			if enabled && sc.RetainDays != config.DefaultRetainDays {
				t.Fatalf("retain days = %d", sc.RetainDays)
			}
		})
	}

	sc, _, err := StorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "2s", RetainDays: 7}})
	if err != nil {
		t.Fatal(err)
	}
	if sc.BusyTimeout != 2*time.Second || sc.RetainDays != 7 {
		t.Fatalf("unexpected mapping: %+v", sc)
	}
}

func TestTrackerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Shift.Timezone = "UTC"
	tc, err := TrackerConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tc.WorkTime != "07:12" || tc.LunchTime != "00:30" || tc.OvertimeAfter != 30*time.Minute {
		t.Fatalf("unexpected tracker config: %+v", tc)
	}
	if tc.Location != time.UTC {
		t.Fatalf("location = %v", tc.Location)
	}

	cfg.Shift.OvertimeAfter = "half an hour"
	if _, err := TrackerConfig(cfg); err == nil {
		t.Fatal("expected error for a bad overtime_after")
	}
}

func TestGroupLogChat(t *testing.T) {
	cfg := config.Default()
	if got := groupLogChat(cfg); got != 0 {
		t.Fatalf("empty group_log = %d", got)
	}
	cfg.Telegram.GroupLog = " -100123 "
	if got := groupLogChat(cfg); got != -100123 {
		t.Fatalf("group_log = %d", got)
	}
	cfg.Telegram.GroupLog = "@logs"
	if got := groupLogChat(cfg); got != 0 {
		t.Fatalf("non-numeric group_log = %d", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	if err := validate(context.Background(), cfg); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}

	bad := config.Default()
	bad.Scheduler.Timezone = "Mars/Olympus"
	if err := validate(context.Background(), bad); err == nil {
		t.Fatal("expected a bad timezone to be rejected")
	}

	bad = config.Default()
	bad.Scheduler.PruneSchedule = "every now and then"
	if err := validate(context.Background(), bad); err == nil {
		t.Fatal("expected a bad prune schedule to be rejected")
	}

	bad = config.Default()
	bad.Storage = &config.StorageConfig{Driver: "redis"}
	if err := validate(context.Background(), bad); err == nil {
		t.Fatal("expected redis without addr to be rejected")
	}
}

func TestPruneJob(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	now := time.Date(2025, 3, 14, 3, 0, 0, 0, time.UTC)
	for _, d := range []time.Time{now.AddDate(0, 0, -40), now.AddDate(0, 0, -31), now.AddDate(0, 0, -30), now} {
		if err := store.StoreDaily(ctx, 1, "start_time", "08:00", d); err != nil {
			t.Fatal(err)
		}
	}

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	job := pruneJob(store, 30, func() time.Time { return now }, logx.Nop(), bus)
	if err := job(ctx); err != nil {
		t.Fatal(err)
	}

	left, err := store.DailyHistory(ctx, 1, now.AddDate(-1, 0, 0), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 2 {
		t.Fatalf("expected 2 values left, got %+v", left)
	}

	select {
	case e := <-events:
		p, ok := e.Data.(eventbus.StoragePruned)
		if e.Type != eventbus.TypeStoragePruned || !ok || p.Removed != 2 {
			t.Fatalf("unexpected event: %+v", e)
		}
	default:
		t.Fatal("no storage.pruned event")
	}
}

func TestOpenStoreFallsBackToMemory(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		cfg := config.Default()
		cfg.Storage = &config.StorageConfig{Driver: driver}
		st, err := openStore(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if _, ok := st.(*storage.Memory); !ok {
			t.Fatalf("driver %q: store = %T, want memory", driver, st)
		}
		ctx := context.Background()
		if err := st.StoreSetting(ctx, "work_time", "08:00"); err != nil {
			t.Fatal(err)
		}
		if v, ok, err := st.GetSetting(ctx, "work_time"); err != nil || !ok || v != "08:00" {
			t.Fatalf("GetSetting = %q %v %v", v, ok, err)
		}
	}

	cfg := config.Default()
	cfg.Storage = nil
	if st, err := openStore(cfg, logx.Nop()); err != nil || st == nil {
		t.Fatalf("missing section: %v %v", st, err)
	}

	cfg.Storage = &config.StorageConfig{Driver: "redis"}
	if _, err := openStore(cfg, logx.Nop()); err == nil {
		t.Fatal("expected redis without addr to fail")
	}
}

func TestRegisterJobs(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Enabled: true}, logx.Nop())
	now := time.Now

	if err := registerJobs(sched, storage.NewMemory(), "0 3 * * *", 90, now, logx.Nop(), nil); err != nil {
		t.Fatal(err)
	}
	if got := scheduleNames(sched); len(got) != 1 || got[0] != pruneJobName {
		t.Fatalf("schedules = %v", got)
	}

	if err := registerJobs(sched, storage.NewMemory(), "not a schedule", 90, now, logx.Nop(), nil); err == nil {
		t.Fatal("expected an invalid spec to fail")
	}

	if err := registerJobs(sched, nil, "0 3 * * *", 90, now, logx.Nop(), nil); err != nil {
		t.Fatal(err)
	}
	if got := scheduleNames(sched); len(got) != 0 {
		t.Fatalf("prune job kept without a store: %v", got)
	}
}

func scheduleNames(s *scheduler.Service) []string {
	var out []string
	for _, si := range s.Snapshot().Schedules {
		out = append(out, si.Name)
	}
	return out
}
