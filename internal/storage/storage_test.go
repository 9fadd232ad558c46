package storage

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"

	logx "cartellino/pkg/logx"
)

func openers(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	m := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			st, err := Open(Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return st
		},
	}
	if addr := os.Getenv("CARTELLINO_TEST_REDIS"); addr != "" {
		m["redis"] = func(t *testing.T) Store {
			st, err := Open(Config{Driver: "redis", Redis: RedisConfig{Addr: addr, DB: 15}}, logx.Nop())
			if err != nil {
				t.Fatalf("open redis: %v", err)
			}
			rs := st.(*redisStore)
			if err := rs.rdb.FlushDB(context.Background()).Err(); err != nil {
				t.Fatalf("flush: %v", err)
			}
			return st
		}
	}
	return m
}

func day(s string) time.Time {
	t, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t.Add(9 * time.Hour)
}

func TestStoreContract(t *testing.T) {
	for name, open := range openers(t) {
		name, open := name, open
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			defer st.Close()

			if _, ok, err := st.GetSetting(ctx, "work_time"); err != nil || ok {
				t.Fatalf("missing setting: ok=%v err=%v", ok, err)
			}
			if err := st.StoreSetting(ctx, "work_time", "07:12"); err != nil {
				t.Fatalf("StoreSetting: %v", err)
			}
			if err := st.StoreSetting(ctx, "work_time", "08:00"); err != nil {
				t.Fatalf("StoreSetting overwrite: %v", err)
			}
			if v, ok, err := st.GetSetting(ctx, "work_time"); err != nil || !ok || v != "08:00" {
				t.Fatalf("GetSetting=%q ok=%v err=%v", v, ok, err)
			}
			all, err := st.Settings(ctx)
			if err != nil || all["work_time"] != "08:00" || len(all) != 1 {
				t.Fatalf("Settings=%v err=%v", all, err)
			}

			_ = st.StoreChat(ctx, 20, "bob")
			_ = st.StoreChat(ctx, 10, "alice")
			_ = st.StoreChat(ctx, 10, "alice2")
			chats, err := st.Chats(ctx)
			if err != nil {
				t.Fatalf("Chats: %v", err)
			}
			if !slices.Equal(chats, []Chat{{ID: 10, Name: "alice2"}, {ID: 20, Name: "bob"}}) {
				t.Fatalf("Chats=%v", chats)
			}

			d1, d2, d3 := day("2025-03-13"), day("2025-03-14"), day("2025-03-15")
			if err := st.StoreDaily(ctx, 10, "start_time", "08:00", d1); err != nil {
				t.Fatalf("StoreDaily: %v", err)
			}
			_ = st.StoreDaily(ctx, 10, "start_time", "09:00", d2)
			_ = st.StoreDaily(ctx, 10, "leisure_time", "00:15", d2)
			_ = st.StoreDaily(ctx, 20, "start_time", "07:30", d2)

			if v, ok, _ := st.GetDaily(ctx, 10, "start_time", d2); !ok || v != "09:00" {
				t.Fatalf("GetDaily d2=%q ok=%v", v, ok)
			}
			// values are per day
			if _, ok, _ := st.GetDaily(ctx, 10, "start_time", d3); ok {
				t.Fatalf("value leaked into another day")
			}

			hist, err := st.DailyHistory(ctx, 10, d1, d3)
			if err != nil {
				t.Fatalf("DailyHistory: %v", err)
			}
			want := []DailyValue{
				{ChatID: 10, Key: "start_time", Value: "08:00", Day: "2025-03-13"},
				{ChatID: 10, Key: "leisure_time", Value: "00:15", Day: "2025-03-14"},
				{ChatID: 10, Key: "start_time", Value: "09:00", Day: "2025-03-14"},
			}
			if !slices.Equal(hist, want) {
				t.Fatalf("DailyHistory=%v", hist)
			}

			if name == "redis" {
				return
			}
			n, err := st.PruneDaily(ctx, d2)
			if err != nil || n != 1 {
				t.Fatalf("PruneDaily n=%d err=%v", n, err)
			}
			if _, ok, _ := st.GetDaily(ctx, 10, "start_time", d1); ok {
				t.Fatalf("pruned value still present")
			}
		})
	}
}

func TestOpenDrivers(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("none: st=%v err=%v", st, err)
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing addr error")
	}
}

func TestSQLiteFileSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/sub/cartellino.db"
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.StoreDaily(context.Background(), 1, "start_time", "08:00", day("2025-01-02")); err != nil {
		t.Fatalf("store: %v", err)
	}
	_ = st.Close()

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if v, ok, _ := st.GetDaily(context.Background(), 1, "start_time", day("2025-01-02")); !ok || v != "08:00" {
		t.Fatalf("value lost: %q ok=%v", v, ok)
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	_ = m.Close()
	if err := m.StoreSetting(context.Background(), "a", "b"); err != ErrDisabled {
		t.Fatalf("err=%v", err)
	}
}

func TestDaysBetween(t *testing.T) {
	got := daysBetween(day("2024-02-27"), day("2024-03-01"))
	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}
	if !slices.Equal(got, want) {
		t.Fatalf("days=%v", got)
	}
	if got := daysBetween(day("2024-03-02"), day("2024-03-01")); len(got) != 0 {
		t.Fatalf("reversed range=%v", got)
	}
	if k := dailyRedisKey(42, "2024-03-01"); k != "cartellino:daily:42:2024-03-01" {
		t.Fatalf("key=%q", k)
	}
}
