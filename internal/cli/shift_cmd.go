package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"cartellino/internal/cli/formatter"
	"cartellino/internal/shift"
	"cartellino/internal/storage"
	"cartellino/internal/tracker"
)

// clockFlag is an "HH:MM" flag value checked at parse time.
type clockFlag struct {
	value string
}

func (f *clockFlag) String() string { return f.value }
func (f *clockFlag) Type() string   { return "HH:MM" }

func (f *clockFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if _, err := shift.Parse(v); err != nil {
		return err
	}
	f.value = v
	return nil
}

// shiftFlags are shared by finish, remaining and watch.
type shiftFlags struct {
	work    clockFlag
	lunch   clockFlag
	leisure clockFlag
}

func (f *shiftFlags) register(cmd *cobra.Command) {
	cmd.Flags().Var(&f.work, "work-time", "work time (default: stored setting, then config, then "+shift.DefaultWork+")")
	cmd.Flags().Var(&f.lunch, "lunch-time", "lunch break (default: stored setting, then config, then "+shift.DefaultLunch+")")
	cmd.Flags().Var(&f.leisure, "leisure", "leisure time to subtract")
}

// input builds the shift from the positional start and the flags. The start
// is prompted for on a terminal when missing.
func (a *App) input(ctx context.Context, args []string, f *shiftFlags) (shift.Input, error) {
	var start string
	if len(args) > 0 {
		start = strings.TrimSpace(args[0])
	}
	if start == "" {
		if !a.interactive() {
			return shift.Input{}, tracker.ErrMissingStartTime
		}
		v, err := a.promptStart()
		if err != nil {
			return shift.Input{}, err
		}
		start = v
	}
	if _, err := shift.Parse(start); err != nil {
		return shift.Input{}, fmt.Errorf("start: %w", err)
	}

	work, lunch, err := a.shiftDefaults(ctx)
	if err != nil {
		return shift.Input{}, err
	}
	if f.work.value != "" {
		work = f.work.value
	}
	if f.lunch.value != "" {
		lunch = f.lunch.value
	}
	return shift.Input{Start: start, Work: work, Lunch: lunch, Leisure: f.leisure.value}, nil
}

// shiftDefaults resolves work and lunch time: stored global settings win over
// the config file, which wins over the built-in defaults. A disabled or
// unreachable store is skipped.
func (a *App) shiftDefaults(ctx context.Context) (work, lunch string, err error) {
	cfg, err := a.config()
	if err != nil {
		return "", "", err
	}
	work, lunch = shift.DefaultWork, shift.DefaultLunch
	if v := strings.TrimSpace(cfg.Shift.WorkTime); v != "" {
		work = v
	}
	if v := strings.TrimSpace(cfg.Shift.LunchTime); v != "" {
		lunch = v
	}

	st, err := a.store()
	if err != nil {
		if !errors.Is(err, storage.ErrDisabled) && a.Err != nil {
			fmt.Fprintln(a.Err, formatter.Dim("settings store unavailable: "+err.Error()))
		}
		return work, lunch, nil
	}
	defer st.Close()
	if v, ok, err := st.GetSetting(ctx, tracker.KeyWorkTime); err == nil && ok {
		work = v
	}
	if v, ok, err := st.GetSetting(ctx, tracker.KeyLunchTime); err == nil && ok {
		lunch = v
	}
	return work, lunch, nil
}

func (a *App) promptStart() (string, error) {
	if a.PromptStart != nil {
		return a.PromptStart()
	}
	var v string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Start time (HH:MM)").
				Placeholder(a.now().In(a.location()).Format("15:04")).
				Value(&v).
				Validate(validateClock),
		),
	).WithTheme(huhTheme()).WithShowHelp(false)
	if err := form.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func validateClock(v string) error {
	if _, err := shift.Parse(v); err != nil {
		return errors.New("use HH:MM, e.g. 08:30")
	}
	return nil
}

func huhTheme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Title = lipgloss.NewStyle().Foreground(formatter.ColorHeader).Bold(true)
	t.Focused.TextInput.Cursor = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.TextInput.Prompt = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.TextInput.Text = lipgloss.NewStyle().Foreground(formatter.ColorFg)
	t.Focused.TextInput.Placeholder = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Focused.ErrorMessage = lipgloss.NewStyle().Foreground(formatter.ColorRed)
	t.Blurred.Title = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	return t
}

func newFinishCmd(app *App) *cobra.Command {
	var f shiftFlags
	cmd := &cobra.Command{
		Use:   "finish [START]",
		Short: "Print when the work turn finishes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := app.input(cmd.Context(), args, &f)
			if err != nil {
				return err
			}
			end, err := in.End()
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "The work turn finishes at: %s\n", end)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newRemainingCmd(app *App) *cobra.Command {
	var f shiftFlags
	cmd := &cobra.Command{
		Use:   "remaining [START]",
		Short: "Print the time left in the work turn",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := app.input(cmd.Context(), args, &f)
			if err != nil {
				return err
			}
			res, err := in.Compute(app.now().In(app.location()))
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "The work turn finishes at: %s\n", res.End)
			fmt.Fprintf(app.Out, "Remaining time: %s\n", res.Remaining)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
