package formatter

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"Key", "Value"}, [][]string{
		{"work_time", "07:12"},
		{"lunch_time"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines[0], "Key")
	assert.Contains(t, lines[1], "─")
	assert.Contains(t, lines[2], "work_time")
	assert.Contains(t, lines[2], "07:12")
	assert.Contains(t, lines[3], "lunch_time")

	// value column starts at the same visible offset on every row
	col := strings.Index(lines[2], "07:12")
	assert.Equal(t, len("lunch_time")+colGap, col)
}

func TestRenderTableEmptyHeaders(t *testing.T) {
	assert.Empty(t, RenderTable(nil, [][]string{{"x"}}))
}

func TestHeader(t *testing.T) {
	h := Header("settings")
	parts := strings.Split(h, "\n")
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "SETTINGS")
	assert.Equal(t, lipgloss.Width("SETTINGS"), lipgloss.Width(parts[1]))
}
