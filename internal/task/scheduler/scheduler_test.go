package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	logx "cartellino/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		in    string
		kind  SpecKind
		cron  string
		every time.Duration
		src   string
		err   bool
	}{
		{in: "0 3 * * *", kind: SpecCron, cron: "0 3 * * *", src: "cron"},
		{in: "@daily", kind: SpecCron, cron: "@daily", src: "cron"},
		{in: "cron:@hourly", kind: SpecCron, cron: "@hourly", src: "cron"},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute, src: "duration"},
		{in: "02:30", kind: SpecInterval, every: 150 * time.Minute, src: "hhmm"},
		{in: "every: 00:50", kind: SpecInterval, every: 50 * time.Minute, src: "hhmm"},
		{in: "interval:2h", kind: SpecInterval, every: 2 * time.Hour, src: "duration"},
		{in: "", err: true},
		{in: "cron:", err: true},
		{in: "00:00", err: true},
		{in: "01:75", err: true},
		{in: "-5m", err: true},
		{in: "soon", err: true},
	}
	for _, tc := range cases {
		got, err := ParseSchedule(tc.in)
		if tc.err {
			if err == nil {
				t.Fatalf("ParseSchedule(%q) = %+v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
		}
		if got.Kind != tc.kind || got.Cron != tc.cron || got.Every != tc.every || got.Source != tc.src {
			t.Fatalf("ParseSchedule(%q) = %+v", tc.in, got)
		}
	}
}

func nop(context.Context) error { return nil }

func TestAddValidatesAndUpserts(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())

	if _, err := s.AddCron("", "0 3 * * *", 0, nop); err == nil {
		t.Fatalf("expected name error")
	}
	if _, err := s.AddCron("x", "not a cron", 0, nop); err == nil {
		t.Fatalf("expected spec error")
	}
	if _, err := s.AddDaily("x", "3:00", 0, nop); err == nil {
		t.Fatalf("expected HH:MM error")
	}

	if _, err := s.AddDaily("storage.prune", "03:15", time.Minute, nop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if _, err := s.AddSchedule("storage.prune", "0 4 * * *", time.Minute, nop); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "0 4 * * *" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if snap.Running {
		t.Fatalf("not started yet")
	}

	if !s.Remove("storage.prune") {
		t.Fatalf("Remove returned false")
	}
	if s.Remove("storage.prune") {
		t.Fatalf("second Remove returned true")
	}
}

func TestAddDailySpec(t *testing.T) {
	s := New(Config{}, logx.Nop())
	if _, err := s.AddDaily("d", "07:05", 0, nop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if got := s.Snapshot().Schedules[0].Spec; got != "5 7 * * *" {
		t.Fatalf("spec = %q", got)
	}
}

func TestNextRunUsesTimezone(t *testing.T) {
	s := New(Config{Enabled: true, Timezone: "Europe/Rome"}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if _, err := s.AddDaily("d", "03:00", 0, nop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	snap := s.Snapshot()
	if snap.Timezone != "Europe/Rome" || !snap.Running {
		t.Fatalf("snapshot = %+v", snap)
	}
	next := snap.Schedules[0].Next
	if next.IsZero() {
		t.Fatalf("next run not computed")
	}
	loc, _ := time.LoadLocation("Europe/Rome")
	if h, m := next.In(loc).Hour(), next.In(loc).Minute(); h != 3 || m != 0 {
		t.Fatalf("next = %v", next.In(loc))
	}
}

func TestCronRunsJob(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	var n atomic.Int32
	if _, err := s.AddCron("tick", "* * * * * *", time.Second, func(context.Context) error {
		n.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for n.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("job never ran")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunNowRecordsHistory(t *testing.T) {
	s := New(Config{}, logx.Nop())
	boom := errors.New("boom")
	calls := 0
	_, _ = s.AddInterval("job", time.Hour, 0, func(context.Context) error {
		calls++
		if calls == 2 {
			panic("bad")
		}
		if calls == 3 {
			return boom
		}
		return nil
	})

	ctx := context.Background()
	if err := s.RunNow(ctx, "job"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := s.RunNow(ctx, "job"); err == nil {
		t.Fatalf("panic was not turned into an error")
	}
	if err := s.RunNow(ctx, "job"); !errors.Is(err, boom) {
		t.Fatalf("third run err = %v", err)
	}
	if err := s.RunNow(ctx, "missing"); err == nil {
		t.Fatalf("expected not found")
	}

	snap := s.Snapshot()
	it := snap.Schedules[0]
	if it.Runs != 3 || it.Failures != 2 || it.LastErr != "boom" {
		t.Fatalf("stats = %+v", it)
	}
	if len(snap.History) != 3 || snap.History[0].Err != "" || snap.History[2].Err != "boom" {
		t.Fatalf("history = %+v", snap.History)
	}
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := New(Config{}, logx.Nop())
	_, _ = s.AddInterval("slow", time.Hour, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.RunNow(context.Background(), "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}
