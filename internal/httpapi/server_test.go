package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartellino/internal/notifier"
	"cartellino/internal/storage"
	"cartellino/internal/tracker"
	logx "cartellino/pkg/logx"
)

type fakeShifts struct {
	reports map[int64]tracker.Report
	pending []notifier.Pending
}

func (f *fakeShifts) WorkEnd(_ context.Context, chatID int64) (tracker.Report, error) {
	if chatID == 500 {
		return tracker.Report{}, errors.New("boom")
	}
	r, ok := f.reports[chatID]
	if !ok {
		return tracker.Report{}, tracker.ErrMissingStartTime
	}
	return r, nil
}

func (f *fakeShifts) Pending() []notifier.Pending { return f.pending }

func newTestServer(t *testing.T, token string) http.Handler {
	t.Helper()
	store := storage.NewMemory()
	require.NoError(t, store.StoreChat(context.Background(), 42, "@ann"))
	shifts := &fakeShifts{
		reports: map[int64]tracker.Report{42: {ChatID: 42, Start: "08:00", Work: "07:12", Lunch: "00:30", End: "15:42", Remaining: "02h:05m"}},
		pending: []notifier.Pending{{ID: "n1", ChatID: 42, Kind: tracker.KindShiftEnd, At: time.Date(2025, 3, 14, 15, 42, 0, 0, time.UTC)}},
	}
	s := New(Config{}, Deps{Chats: store, Shifts: shifts}, logx.Nop())
	return s.Handler(Config{Token: token})
}

func get(t *testing.T, h http.Handler, path string, hdr map[string]string) (int, map[string]any, []any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	var obj map[string]any
	var arr []any
	if json.Unmarshal(body, &obj) != nil {
		_ = json.Unmarshal(body, &arr)
	}
	return rec.Code, obj, arr
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	code, obj, _ := get(t, newTestServer(t, "secret"), "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", obj["status"])
}

func TestChats(t *testing.T) {
	t.Parallel()
	code, _, arr := get(t, newTestServer(t, ""), "/api/chats", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, arr, 1)
	assert.Equal(t, map[string]any{"id": float64(42), "name": "@ann"}, arr[0])
}

func TestChatShift(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, "")

	code, obj, _ := get(t, h, "/api/chats/42/shift", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "15:42", obj["end"])
	assert.Equal(t, "02h:05m", obj["remaining"])
	assert.NotContains(t, obj, "leisure")

	code, obj, _ = get(t, h, "/api/chats/7/shift", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no start time stored for today", obj["error"])

	code, _, _ = get(t, h, "/api/chats/abc/shift", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, _ = get(t, h, "/api/chats/500/shift", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestNotifications(t *testing.T) {
	t.Parallel()
	code, _, arr := get(t, newTestServer(t, ""), "/api/notifications", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, arr, 1)
	assert.Equal(t, "shift_end", arr[0].(map[string]any)["kind"])
}

func TestTokenGuardsAPI(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, "secret")

	code, _, _ := get(t, h, "/api/chats", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _, _ = get(t, h, "/api/chats", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _, _ = get(t, h, "/api/chats", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, code)
}

func TestProfilerMount(t *testing.T) {
	t.Parallel()
	s := New(Config{}, Deps{}, logx.Nop())

	code, _, _ := get(t, s.Handler(Config{}), "/debug/pprof/", nil)
	assert.Equal(t, http.StatusNotFound, code)

	h := s.Handler(Config{Token: "secret", Pprof: true})
	code, _, _ = get(t, h, "/debug/pprof/", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _, _ = get(t, h, "/debug/pprof/", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, code)
}

func TestMissingDeps(t *testing.T) {
	t.Parallel()
	h := New(Config{}, Deps{}, logx.Nop()).Handler(Config{})
	for _, p := range []string{"/api/chats", "/api/chats/1/shift", "/api/notifications"} {
		code, _, _ := get(t, h, p, nil)
		assert.Equal(t, http.StatusServiceUnavailable, code, p)
	}
}

func TestServerLifecycle(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{}, logx.Nop())
	ctx := context.Background()
	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	t.Cleanup(func() { s.Stop(context.Background()) })

	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 20*time.Millisecond)
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Reconfigure(ctx, Config{Enabled: false})
	assert.Nil(t, s.Supervisor())
	assert.Empty(t, s.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	assert.True(t, isLoopbackAddr("127.0.0.1:8089"))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.True(t, isLoopbackAddr("[::1]:80"))
	assert.False(t, isLoopbackAddr(":8089"))
	assert.False(t, isLoopbackAddr("0.0.0.0:8089"))
	assert.False(t, isLoopbackAddr("nope"))
}
