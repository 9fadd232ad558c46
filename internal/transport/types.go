package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// SendOptions tweaks a single send. Keyboard is a reply keyboard given as
// rows of button labels; RemoveKeyboard hides the current one.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Keyboard       [][]string
	RemoveKeyboard bool
}

// Adapter is a chat platform connection. Start pushes incoming updates to
// out until ctx is done or Stop is called.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Sender is the outbound half of Adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// BotCommand is one entry of the platform's command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// ChatInfo describes a chat that recently wrote to the bot.
type ChatInfo struct {
	ChatID   int64
	Username string
	Name     string
	Text     string
}

// RecentChatsLister is implemented by adapters that can list pending
// updates without a running poller.
type RecentChatsLister interface {
	RecentChats(ctx context.Context) ([]ChatInfo, error)
}
