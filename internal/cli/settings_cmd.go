package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"cartellino/internal/cli/formatter"
	"cartellino/internal/shift"
	"cartellino/internal/tracker"
)

var errSettingNotSet = errors.New("setting not set")

// clockSettings hold "HH:MM" values.
var clockSettings = map[string]bool{
	tracker.KeyWorkTime:  true,
	tracker.KeyLunchTime: true,
}

func validateSetting(k, v string) error {
	if strings.TrimSpace(k) == "" {
		return errors.New("setting key is empty")
	}
	if clockSettings[k] {
		if _, err := shift.Parse(v); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

func newSettingsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change global settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := app.store()
				if err != nil {
					return err
				}
				defer st.Close()
				all, err := st.Settings(cmd.Context())
				if err != nil {
					return err
				}
				if len(all) == 0 {
					fmt.Fprintln(app.Out, formatter.Dim("no settings stored"))
					return nil
				}
				keys := make([]string, 0, len(all))
				for k := range all {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				rows := make([][]string, 0, len(keys))
				for _, k := range keys {
					rows = append(rows, []string{k, all[k]})
				}
				fmt.Fprint(app.Out, formatter.RenderTable([]string{"Key", "Value"}, rows))
				return nil
			},
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := app.store()
				if err != nil {
					return err
				}
				defer st.Close()
				v, ok, err := st.GetSetting(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", errSettingNotSet, args[0])
				}
				fmt.Fprintln(app.Out, v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Store a setting (work_time and lunch_time take HH:MM)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				k, v := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
				if err := validateSetting(k, v); err != nil {
					return err
				}
				st, err := app.store()
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.StoreSetting(cmd.Context(), k, v); err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "%s set to %s\n", k, v)
				return nil
			},
		},
	)
	return cmd
}
