// Package cli implements the cartellino command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"cartellino/internal/app"
	"cartellino/internal/config"
	"cartellino/internal/storage"
	kit "cartellino/internal/transport"
	telegram "cartellino/internal/transport/telegram/adapter"
	logx "cartellino/pkg/logx"
)

// Messenger is the Telegram side of the notify commands.
type Messenger interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	RecentChats(ctx context.Context) ([]kit.ChatInfo, error)
}

// App carries the command dependencies. Zero fields fall back to the real
// implementations.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	IsInteractive func() bool
	Now           func() time.Time

	// ConfigPath is set by the persistent --config flag.
	ConfigPath string

	OpenStore    func(cfg *config.Config) (storage.Store, error)
	NewMessenger func(cfg *config.Config) (Messenger, error)
	PromptStart  func() (string, error)
	RunProgram   func(m tea.Model) error

	cfg *config.Config
}

// NewRootCmd creates the "cartellino" command with every subcommand bound to app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "cartellino",
		Short:         "Work shift calculator and reminder",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if app.Out == nil {
				app.Out = cmd.OutOrStdout()
			}
			if app.Err == nil {
				app.Err = cmd.ErrOrStderr()
			}
			if app.In == nil {
				app.In = cmd.InOrStdin()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "config file (JSON or YAML); defaults apply when empty")
	// --lunch_time and --lunch-time are the same flag
	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.AddCommand(
		newFinishCmd(app),
		newRemainingCmd(app),
		newWatchCmd(app),
		newNotifyCmd(app),
		newSettingsCmd(app),
		newExportCmd(app),
	)
	return root
}

// config loads the file named by --config once. An empty path yields the
// defaults; a named file must exist.
func (a *App) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := config.Default()
	if p := strings.TrimSpace(a.ConfigPath); p != "" {
		loaded, err := config.NewManager(p).Load()
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config file %s not found", p)
		default:
			return nil, fmt.Errorf("config %s: %w", p, err)
		}
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// location is the shift timezone of the loaded config.
func (a *App) location() *time.Location {
	cfg, err := a.config()
	if err != nil {
		return time.Local
	}
	loc, err := config.LoadLocation(cfg.Shift.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (a *App) interactive() bool {
	return a.IsInteractive != nil && a.IsInteractive()
}

// store opens the configured store. The caller closes it.
func (a *App) store() (storage.Store, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if a.OpenStore != nil {
		return a.OpenStore(cfg)
	}
	sc, enabled, err := app.StorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	return storage.Open(sc, logx.Nop())
}

func (a *App) messenger() (Messenger, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if a.NewMessenger != nil {
		return a.NewMessenger(cfg)
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, fmt.Errorf("telegram token missing: set %s or telegram.token", config.EnvBotToken)
	}
	return telegram.New(telegram.Config{Token: cfg.Telegram.Token, Offline: true}, logx.Nop())
}

func (a *App) runProgram(m tea.Model) error {
	if a.RunProgram != nil {
		return a.RunProgram(m)
	}
	_, err := tea.NewProgram(m, tea.WithInput(a.In), tea.WithOutput(a.Out)).Run()
	return err
}
