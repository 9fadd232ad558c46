package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cartellino/internal/export"
	"cartellino/internal/storage"
)

func newExportCmd(app *App) *cobra.Command {
	var (
		chatID   int64
		from, to string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a chat's timesheet to an .xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loc := app.location()
			today := app.now().In(loc)

			toDay := today
			if to != "" {
				d, err := time.ParseInLocation(storage.DayLayout, to, loc)
				if err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				toDay = d
			}
			fromDay := time.Date(toDay.Year(), toDay.Month(), 1, 0, 0, 0, 0, loc)
			if from != "" {
				d, err := time.ParseInLocation(storage.DayLayout, from, loc)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				fromDay = d
			}
			if toDay.Before(fromDay) {
				return errors.New("--to is before --from")
			}

			work, lunch, err := app.shiftDefaults(ctx)
			if err != nil {
				return err
			}
			st, err := app.store()
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := export.Timesheet(ctx, st, chatID, fromDay, toDay, export.Defaults{Work: work, Lunch: lunch})
			if err != nil {
				return err
			}
			if err := export.SaveXLSX(rows, out); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Wrote %d days (%s to %s) to %s\n", len(rows), storage.DayKey(fromDay), storage.DayKey(toDay), out)
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: first of the month of --to)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVarP(&out, "out", "o", "timesheet.xlsx", "output file")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}
