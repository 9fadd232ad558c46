package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cartellino/internal/cli/formatter"
	"cartellino/internal/storage"
	kit "cartellino/internal/transport"
)

func newNotifyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send Telegram messages and discover chat ids",
	}
	cmd.AddCommand(newNotifySendCmd(app), newNotifyChatsCmd(app))
	return cmd
}

func newNotifySendCmd(app *App) *cobra.Command {
	var (
		chatID  int64
		message string
	)
	cmd := &cobra.Command{
		Use:   "send [MESSAGE]",
		Short: "Send a message to a chat",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				message = args[0]
			}
			if strings.TrimSpace(message) == "" {
				return errors.New("message is empty")
			}
			m, err := app.messenger()
			if err != nil {
				return err
			}
			if _, err := m.SendText(cmd.Context(), kit.ChatTarget{ChatID: chatID}, message, nil); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Fprintln(app.Out, "Notification sent successfully!")
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "destination chat id")
	cmd.Flags().StringVar(&message, "message", "", "text to send")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

type chatRow struct {
	id     int64
	name   string
	source string
	last   string
}

func newNotifyChatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List chat ids from recent messages and known chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, err := app.messenger()
			if err != nil {
				return err
			}
			recent, err := m.RecentChats(ctx)
			if err != nil {
				return fmt.Errorf("get updates: %w", err)
			}

			rows := map[int64]*chatRow{}
			for _, c := range recent {
				if c.ChatID == 0 {
					continue
				}
				name := c.Name
				if c.Username != "" {
					name = "@" + c.Username
				}
				rows[c.ChatID] = &chatRow{id: c.ChatID, name: name, source: "recent", last: c.Text}
			}

			if st, err := app.store(); err == nil {
				known, kerr := st.Chats(ctx)
				_ = st.Close()
				if kerr != nil {
					return kerr
				}
				for _, c := range known {
					if r, ok := rows[c.ID]; ok {
						r.source = "recent, stored"
						if r.name == "" {
							r.name = c.Name
						}
						continue
					}
					rows[c.ID] = &chatRow{id: c.ID, name: c.Name, source: "stored"}
				}
			} else if !errors.Is(err, storage.ErrDisabled) {
				fmt.Fprintln(app.Err, formatter.Dim("known chats unavailable: "+err.Error()))
			}

			switch {
			case len(recent) == 0 && len(rows) == 0:
				fmt.Fprintln(app.Out, "No new messages found.")
				return nil
			case len(rows) == 0:
				fmt.Fprintln(app.Out, "No chat IDs found in recent messages.")
				return nil
			}

			ids := make([]int64, 0, len(rows))
			for id := range rows {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			table := make([][]string, 0, len(ids))
			for _, id := range ids {
				r := rows[id]
				table = append(table, []string{strconv.FormatInt(r.id, 10), r.name, r.source, truncate(r.last, 40)})
			}
			fmt.Fprintln(app.Out, "Found chat IDs:")
			fmt.Fprint(app.Out, formatter.RenderTable([]string{"Chat ID", "Name", "Source", "Last message"}, table))
			return nil
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
