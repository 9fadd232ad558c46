package cli

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartellino/internal/shift"
	"cartellino/internal/tracker"
)

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWatchModelCountsDown(t *testing.T) {
	now := time.Date(2025, 3, 14, 11, 51, 0, 0, time.UTC)
	m, err := newWatchModel(shift.Input{Start: "08:00", Work: "07:12", Lunch: "00:30"}, func() time.Time { return now })
	require.NoError(t, err)

	assert.Equal(t, "03h:51m", m.remaining)
	assert.InDelta(t, 0.5, m.done, 0.001)
	assert.NotNil(t, m.Init())
	assert.Contains(t, m.View(), "Remaining time:")
	assert.Contains(t, m.View(), "End 15:42")

	now = now.Add(time.Hour)
	_, cmd := m.Update(tickMsg(now))
	assert.Equal(t, "02h:51m", m.remaining)
	assert.False(t, m.finished)
	assert.NotNil(t, cmd)

	now = time.Date(2025, 3, 14, 15, 42, 0, 0, time.UTC)
	_, cmd = m.Update(tickMsg(now))
	assert.True(t, m.finished)
	assert.Equal(t, "00:00", m.remaining)
	assert.Equal(t, 1.0, m.done)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), tracker.MsgShiftEnd)
}

func TestWatchModelQuitKey(t *testing.T) {
	now := time.Date(2025, 3, 14, 7, 0, 0, 0, time.UTC)
	m, err := newWatchModel(shift.Input{Start: "08:00", Work: "07:12", Lunch: "00:30"}, func() time.Time { return now })
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.done, "before the start nothing is done")

	_, cmd := m.Update(keyMsg("x"))
	assert.Nil(t, cmd)
	assert.False(t, m.quit)

	_, cmd = m.Update(keyMsg("q"))
	assert.True(t, m.quit)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWatchModelResize(t *testing.T) {
	m, err := newWatchModel(shift.Input{Start: "08:00", Work: "07:12", Lunch: "00:30"}, time.Now)
	require.NoError(t, err)
	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	assert.Equal(t, 26, m.bar.Width)
	m.Update(tea.WindowSizeMsg{Width: 200, Height: 10})
	assert.Equal(t, 60, m.bar.Width)
}

func TestWatchCmdRunsProgram(t *testing.T) {
	f := newFixture(t)
	var got tea.Model
	f.app.RunProgram = func(m tea.Model) error { got = m; return nil }

	_, err := executeCmd(t, f.app, "watch", "08:00", "--leisure", "00:10")
	require.NoError(t, err)
	wm, ok := got.(*watchModel)
	require.True(t, ok)
	assert.Equal(t, "15:32", wm.end.String())
	assert.Equal(t, "01h:55m", wm.remaining)
}

func TestWatchModelRejectsBadStart(t *testing.T) {
	_, err := newWatchModel(shift.Input{Start: "8", Work: "07:12", Lunch: "00:30"}, time.Now)
	assert.ErrorIs(t, err, shift.ErrInvalidFormat)
}
