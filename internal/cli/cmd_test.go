package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"cartellino/internal/config"
	"cartellino/internal/shift"
	"cartellino/internal/storage"
	"cartellino/internal/tracker"
	kit "cartellino/internal/transport"
)

// sharedStore keeps one memory store alive across commands that close it.
type sharedStore struct{ storage.Store }

func (sharedStore) Close() error { return nil }

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []string
	to     []int64
	recent []kit.ChatInfo
	err    error
}

func (f *fakeMessenger) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	f.to = append(f.to, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeMessenger) RecentChats(context.Context) ([]kit.ChatInfo, error) {
	return f.recent, f.err
}

type fixture struct {
	app   *App
	store *storage.Memory
	msg   *fakeMessenger
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewMemory(),
		msg:   &fakeMessenger{},
		now:   time.Date(2025, 3, 14, 13, 37, 0, 0, time.UTC),
	}
	f.app = &App{
		Now:           func() time.Time { return f.now },
		IsInteractive: func() bool { return false },
		OpenStore: func(*config.Config) (storage.Store, error) {
			return sharedStore{f.store}, nil
		},
		NewMessenger: func(*config.Config) (Messenger, error) { return f.msg, nil },
	}
	cfg := config.Default()
	cfg.Shift.Timezone = "UTC"
	f.app.cfg = cfg
	return f
}

// executeCmd runs a fresh root command and captures its output.
func executeCmd(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app)
	buf := new(bytes.Buffer)
	app.Out, app.Err = buf, buf
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestFinish(t *testing.T) {
	f := newFixture(t)

	out, err := executeCmd(t, f.app, "finish", "08:00")
	require.NoError(t, err)
	assert.Equal(t, "The work turn finishes at: 15:42\n", out)

	out, err = executeCmd(t, f.app, "finish", "08:00", "--work-time", "06:00", "--lunch_time", "01:00", "--leisure", "00:15")
	require.NoError(t, err)
	assert.Equal(t, "The work turn finishes at: 14:45\n", out)
}

func TestFinishRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := executeCmd(t, f.app, "finish", "8:00")
	assert.ErrorIs(t, err, shift.ErrInvalidFormat)

	_, err = executeCmd(t, f.app, "finish", "08:00", "--work-time", "7h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time format")
}

func TestFinishWithoutStart(t *testing.T) {
	f := newFixture(t)

	_, err := executeCmd(t, f.app, "finish")
	assert.ErrorIs(t, err, tracker.ErrMissingStartTime)

	f.app.IsInteractive = func() bool { return true }
	f.app.PromptStart = func() (string, error) { return "09:00", nil }
	out, err := executeCmd(t, f.app, "finish")
	require.NoError(t, err)
	assert.Equal(t, "The work turn finishes at: 16:42\n", out)
}

func TestFinishUsesStoredSettings(t *testing.T) {
	f := newFixture(t)

	_, err := executeCmd(t, f.app, "settings", "set", "work_time", "08:00")
	require.NoError(t, err)

	out, err := executeCmd(t, f.app, "finish", "08:00")
	require.NoError(t, err)
	assert.Equal(t, "The work turn finishes at: 16:30\n", out)

	// a flag still wins over the stored value
	out, err = executeCmd(t, f.app, "finish", "08:00", "--work-time", "07:12")
	require.NoError(t, err)
	assert.Equal(t, "The work turn finishes at: 15:42\n", out)
}

func TestFinishWithoutStore(t *testing.T) {
	f := newFixture(t)
	f.app.OpenStore = func(*config.Config) (storage.Store, error) { return nil, storage.ErrDisabled }

	out, err := executeCmd(t, f.app, "finish", "08:00")
	require.NoError(t, err)
	assert.Equal(t, "The work turn finishes at: 15:42\n", out)
}

func TestRemaining(t *testing.T) {
	f := newFixture(t)

	out, err := executeCmd(t, f.app, "remaining", "08:00")
	require.NoError(t, err)
	assert.Contains(t, out, "The work turn finishes at: 15:42\n")
	assert.Contains(t, out, "Remaining time: 02h:05m\n")

	f.now = time.Date(2025, 3, 14, 17, 0, 0, 0, time.UTC)
	out, err = executeCmd(t, f.app, "remaining", "08:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Remaining time: 00:00\n")
}

func TestSettings(t *testing.T) {
	f := newFixture(t)

	_, err := executeCmd(t, f.app, "settings", "set", "lunch_time", "45m")
	assert.ErrorIs(t, err, shift.ErrInvalidFormat)

	out, err := executeCmd(t, f.app, "settings", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no settings stored")

	out, err = executeCmd(t, f.app, "settings", "set", "lunch_time", "00:45")
	require.NoError(t, err)
	assert.Equal(t, "lunch_time set to 00:45\n", out)

	out, err = executeCmd(t, f.app, "settings", "get", "lunch_time")
	require.NoError(t, err)
	assert.Equal(t, "00:45\n", out)

	_, err = executeCmd(t, f.app, "settings", "get", "work_time")
	assert.ErrorIs(t, err, errSettingNotSet)

	out, err = executeCmd(t, f.app, "settings", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "lunch_time")
	assert.Contains(t, out, "00:45")
}

func TestNotifySend(t *testing.T) {
	f := newFixture(t)

	out, err := executeCmd(t, f.app, "notify", "send", "--chat", "42", "--message", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Notification sent successfully!\n", out)
	assert.Equal(t, []string{"hello"}, f.msg.sent)
	assert.Equal(t, []int64{42}, f.msg.to)

	_, err = executeCmd(t, f.app, "notify", "send", "--chat", "42", "bye")
	require.NoError(t, err)
	assert.Equal(t, "bye", f.msg.sent[1])

	_, err = executeCmd(t, f.app, "notify", "send", "--message", "hello")
	assert.Error(t, err, "--chat is required")

	f.msg.err = errors.New("boom")
	_, err = executeCmd(t, f.app, "notify", "send", "--chat", "42", "--message", "again")
	assert.ErrorContains(t, err, "boom")
}

func TestNotifyChats(t *testing.T) {
	f := newFixture(t)

	out, err := executeCmd(t, f.app, "notify", "chats")
	require.NoError(t, err)
	assert.Equal(t, "No new messages found.\n", out)

	f.msg.recent = []kit.ChatInfo{{ChatID: 7, Username: "ann", Text: "hi"}}
	require.NoError(t, f.store.StoreChat(context.Background(), 9, "bob"))
	require.NoError(t, f.store.StoreChat(context.Background(), 7, "@ann"))

	out, err = executeCmd(t, f.app, "notify", "chats")
	require.NoError(t, err)
	assert.Contains(t, out, "Found chat IDs:")
	assert.Contains(t, out, "@ann")
	assert.Contains(t, out, "recent, stored")
	assert.Contains(t, out, "bob")
	assert.Less(t, bytes.Index([]byte(out), []byte("7 ")), bytes.Index([]byte(out), []byte("9 ")))
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for d, start := range map[int]string{3: "08:00", 4: "09:15", 20: "07:30"} {
		day := time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC)
		require.NoError(t, f.store.StoreDaily(ctx, 1, tracker.KeyStartTime, start, day))
	}
	path := filepath.Join(t.TempDir(), "march.xlsx")

	out, err := executeCmd(t, f.app, "export", "--chat", "1", "--to", "2025-03-10", "-o", path)
	require.NoError(t, err)
	assert.Equal(t, "Wrote 2 days (2025-03-01 to 2025-03-10) to "+path+"\n", out)

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Timesheet")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2025-03-03", "08:00", "", "07:12", "00:30", "15:42"}, rows[1])

	_, err = executeCmd(t, f.app, "export", "--chat", "1", "--from", "2025-03-10", "--to", "2025-03-01", "-o", path)
	assert.ErrorContains(t, err, "before")
}

func TestClockFlag(t *testing.T) {
	var f clockFlag
	require.NoError(t, f.Set(" 07:12 "))
	assert.Equal(t, "07:12", f.String())
	assert.Equal(t, "HH:MM", f.Type())
	assert.ErrorIs(t, f.Set("7:12"), shift.ErrInvalidFormat)
	assert.Equal(t, "07:12", f.String())
}

func TestConfigMissingFile(t *testing.T) {
	app := &App{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")}
	_, err := app.config()
	assert.ErrorContains(t, err, "not found")
}
