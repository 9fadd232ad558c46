package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"cartellino/internal/cli/formatter"
	"cartellino/internal/shift"
	"cartellino/internal/tracker"
)

type tickMsg time.Time

type watchKeys struct {
	Quit key.Binding
}

func defaultWatchKeys() watchKeys {
	return watchKeys{
		Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// watchModel counts down to the end of the shift.
type watchModel struct {
	in    shift.Input
	start shift.Clock
	end   shift.Clock
	now   func() time.Time
	every time.Duration

	keys watchKeys
	bar  progress.Model

	remaining string
	done      float64
	finished  bool
	quit      bool
}

func newWatchModel(in shift.Input, now func() time.Time) (*watchModel, error) {
	start, err := shift.Parse(in.Start)
	if err != nil {
		return nil, err
	}
	end, err := in.End()
	if err != nil {
		return nil, err
	}
	m := &watchModel{
		in:    in,
		start: start,
		end:   end,
		now:   now,
		every: time.Second,
		keys:  defaultWatchKeys(),
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	m.refresh(now())
	return m, nil
}

func (m *watchModel) refresh(t time.Time) {
	cur := shift.ClockOf(t).TruncateMinute()
	m.remaining = shift.FormatRemaining(m.end - cur)
	m.finished = m.end-cur <= 0
	total := m.end - m.start
	switch {
	case m.finished || total <= 0:
		m.done = 1
	case cur <= m.start:
		m.done = 0
	default:
		m.done = float64(cur-m.start) / float64(total)
	}
}

func (m *watchModel) tick() tea.Cmd {
	return tea.Tick(m.every, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *watchModel) Init() tea.Cmd { return m.tick() }

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quit = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width-4, 60), 10)
	case tickMsg:
		m.refresh(m.now())
		if m.finished {
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *watchModel) View() string {
	var b strings.Builder
	b.WriteString(formatter.Header("work turn"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Start %s   End %s\n\n", m.in.Start, m.end)
	b.WriteString(m.bar.ViewAs(m.done))
	b.WriteString("\n\n")
	if m.finished {
		b.WriteString(formatter.StyleGreen.Render(tracker.MsgShiftEnd))
	} else {
		left := 1 - m.done
		fmt.Fprintf(&b, "Remaining time: %s", formatter.RemainingStyle(left).Render(m.remaining))
	}
	b.WriteString("\n")
	b.WriteString(formatter.Dim(m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc))
	b.WriteString("\n")
	return b.String()
}

func newWatchCmd(app *App) *cobra.Command {
	var f shiftFlags
	cmd := &cobra.Command{
		Use:   "watch [START]",
		Short: "Show a live countdown to the end of the work turn",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := app.input(cmd.Context(), args, &f)
			if err != nil {
				return err
			}
			loc := app.location()
			m, err := newWatchModel(in, func() time.Time { return app.now().In(loc) })
			if err != nil {
				return err
			}
			return app.runProgram(m)
		},
	}
	f.register(cmd)
	return cmd
}
