// Package bot routes Telegram updates to the tracker.
//
// Updates of one chat are handled in order by the same worker; different
// chats run in parallel on a bounded pool.
package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "cartellino/internal/runtime/supervisor"
	"cartellino/internal/tracker"
	kit "cartellino/internal/transport"
	logx "cartellino/pkg/logx"
)

// Tracker is what the handlers need from *tracker.Tracker.
type Tracker interface {
	StartTime(ctx context.Context, chatID int64) (string, bool, error)
	HasStartTime(ctx context.Context, chatID int64) (bool, error)
	Arrive(ctx context.Context, chatID int64) (string, bool, error)
	SetStartTime(ctx context.Context, chatID int64, v string) error
	SetLeisure(ctx context.Context, chatID int64, v string) error
	WorkEnd(ctx context.Context, chatID int64) (tracker.Report, error)
	NotifyShiftEnd(ctx context.Context, chatID int64, target kit.ChatTarget) (string, error)
	NotifyOvertime(ctx context.Context, chatID int64, target kit.ChatTarget) (time.Time, bool, error)
}

// ChatRecorder remembers chats that said /start.
type ChatRecorder interface {
	StoreChat(ctx context.Context, chatID int64, name string) error
}

type Config struct {
	// AllowedChatIDs limits the bot to these chats. Empty allows everyone.
	AllowedChatIDs []int64
	// HandlerTimeout bounds one update. 0 means 30s.
	HandlerTimeout time.Duration
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Text    string
	Route   string
	Args    []string
	ReqID   string
	Logger  logx.Logger
	Adapter kit.Adapter
}

func (r *Request) logger(def logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return def
}

// Bot owns conversation state and the worker pool.
type Bot struct {
	log     logx.Logger
	adapter kit.Adapter
	tr      Tracker
	chats   ChatRecorder

	mu  sync.RWMutex
	cfg Config

	conv *conversations

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	shards  []chan func()
}

const shardQueueCap = 64

func New(adapter kit.Adapter, tr Tracker, chats ChatRecorder, cfg Config, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		log:     log.Component("bot"),
		adapter: adapter,
		tr:      tr,
		chats:   chats,
		conv:    newConversations(),
	}
	b.Apply(cfg)
	return b
}

// Apply swaps the config; safe during hot reload.
func (b *Bot) Apply(cfg Config) {
	cfg.AllowedChatIDs = slices.Clone(cfg.AllowedChatIDs)
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func (b *Bot) allowed(chatID int64) bool {
	ids := b.config().AllowedChatIDs
	return len(ids) == 0 || slices.Contains(ids, chatID)
}

// Supervisor returns the worker pool's supervisor (nil when not running).
func (b *Bot) Supervisor() *rtsup.Supervisor {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if !b.running {
		return nil
	}
	return b.sup
}

// Commands is the command menu the adapter should publish.
func (b *Bot) Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "start", Description: "show the keyboard"},
		{Command: "set_start", Description: "set today's start time"},
		{Command: "work_end", Description: "when does the shift end"},
		{Command: "cancel", Description: "cancel the current question"},
		{Command: "help", Description: "show help"},
	}
}

// tryEnqueue hands fn to the chat's worker. It fails when the queue is full
// or already closed.
func (b *Bot) tryEnqueue(chatID int64, fn func()) (ok bool) {
	b.runMu.Lock()
	shards := b.shards
	running := b.running
	b.runMu.Unlock()
	if !running || len(shards) == 0 {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	idx := chatID % int64(len(shards))
	if idx < 0 {
		idx = -idx
	}
	select {
	case shards[idx] <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (b *Bot) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)
	sup := rtsup.New(ctx,
		rtsup.WithLogger(b.log),
		rtsup.WithCancelOnError(false),
	)
	shards := make([]chan func(), workers)
	for i := range shards {
		shards[i] = make(chan func(), shardQueueCap)
	}
	b.runMu.Lock()
	b.sup, b.shards, b.running = sup, shards, true
	b.runMu.Unlock()
	b.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("queue_cap", shardQueueCap))

	for i, jobs := range shards {
		jobs := jobs
		idx := i
		sup.GoRestart("bot.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								b.log.Error("panic in bot job", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		b.runMu.Lock()
		b.running = false
		for _, ch := range b.shards {
			close(ch)
		}
		b.shards = nil
		b.runMu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		b.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			b.route(ctx, up)
		}
	}
}

func (b *Bot) route(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		b.log.Debug("ignoring update", logx.String("kind", string(up.Kind)))
		return
	}
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !b.allowed(msg.ChatID) {
		b.log.Debug("chat not allowed", logx.ChatID(msg.ChatID))
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Text:    strings.TrimSpace(msg.Text),
		ReqID:   rid,
		Adapter: b.adapter,
		Logger:  b.log.With(logx.String("rid", rid), logx.ChatID(msg.ChatID), logx.Int64("from_id", msg.FromID)),
	}
	if !b.tryEnqueue(msg.ChatID, func() { b.serve(ctx, req) }) {
		_, _ = b.adapter.SendText(ctx, chat, "busy, try again", nil)
	}
}

// serve runs req through the middleware chain and answers a failed request
// with a short generic text.
func (b *Bot) serve(ctx context.Context, req *Request) {
	final := Chain(
		b.handle,
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(b.config().HandlerTimeout),
	)
	if err := final(ctx, req); err == nil || ctx.Err() != nil {
		return
	}
	if err := b.send(ctx, req, msgFailed, nil); err != nil {
		req.logger(b.log).Warn("failure reply not sent", logx.Err(err))
	}
}

// parseCommand splits "/cmd@bot a b" into ("cmd", [a b]).
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), parts[1:], true
}
