// Package tracker keeps one user's working day per chat: when they arrived,
// how much leisure to deduct, when the shift ends, and the notifications
// scheduled for the end of the shift and the overtime threshold.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cartellino/internal/eventbus"
	"cartellino/internal/notifier"
	"cartellino/internal/shift"
	"cartellino/internal/storage"
	kit "cartellino/internal/transport"
	logx "cartellino/pkg/logx"
)

var (
	ErrMissingStartTime = errors.New("start time not set for today")
	ErrStartAlreadySet  = errors.New("start time already set for today")
	ErrNoStore          = errors.New("tracker has no store")
)

// Store keys.
const (
	KeyStartTime   = "start_time"
	KeyLeisureTime = "leisure_time"
	KeyWorkTime    = "work_time"
	KeyLunchTime   = "lunch_time"
)

// Notification kinds.
const (
	KindShiftEnd = "shift_end"
	KindOvertime = "overtime"
)

const MsgShiftEnd = "Work time is over!"

// Scheduler is the part of notifier.Service the tracker needs.
type Scheduler interface {
	ScheduleMessage(delay time.Duration, msg notifier.Message) (*notifier.Handle, error)
	Pending() []notifier.Pending
}

// Config holds the fallback shift lengths. Global settings in the store win.
type Config struct {
	WorkTime      string
	LunchTime     string
	OvertimeAfter time.Duration
	Location      *time.Location
}

type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

type pendingKey struct {
	chatID int64
	kind   string
}

type Tracker struct {
	store storage.Store
	notes Scheduler
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	mu      sync.Mutex
	cfg     Config
	pending map[pendingKey]*notifier.Handle
}

func New(store storage.Store, notes Scheduler, cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Tracker{
		store:   store,
		notes:   notes,
		log:     log.Component("tracker"),
		bus:     bus,
		now:     time.Now,
		pending: map[pendingKey]*notifier.Handle{},
	}
	for _, o := range opts {
		o(t)
	}
	t.Apply(cfg)
	return t
}

// Apply swaps the defaults. Already scheduled notifications keep their time.
func (t *Tracker) Apply(cfg Config) {
	if strings.TrimSpace(cfg.WorkTime) == "" {
		cfg.WorkTime = shift.DefaultWork
	}
	if strings.TrimSpace(cfg.LunchTime) == "" {
		cfg.LunchTime = shift.DefaultLunch
	}
	if cfg.OvertimeAfter <= 0 {
		cfg.OvertimeAfter = shift.DefaultOvertimeAfter
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

func (t *Tracker) config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// Now is the tracker's clock in the configured location.
func (t *Tracker) Now() time.Time {
	return t.now().In(t.config().Location)
}

func (t *Tracker) StartTime(ctx context.Context, chatID int64) (string, bool, error) {
	if t.store == nil {
		return "", false, ErrNoStore
	}
	return t.store.GetDaily(ctx, chatID, KeyStartTime, t.Now())
}

func (t *Tracker) HasStartTime(ctx context.Context, chatID int64) (bool, error) {
	_, ok, err := t.StartTime(ctx, chatID)
	return ok, err
}

// Arrive stores the current time as today's start unless one exists, in
// which case the stored value comes back with already set.
func (t *Tracker) Arrive(ctx context.Context, chatID int64) (start string, already bool, err error) {
	if v, ok, err := t.StartTime(ctx, chatID); err != nil || ok {
		return v, ok, err
	}
	now := t.Now()
	start = shift.ClockOf(now).String()
	if err := t.store.StoreDaily(ctx, chatID, KeyStartTime, start, now); err != nil {
		return "", false, fmt.Errorf("store start time: %w", err)
	}
	t.started(ctx, chatID, start)
	return start, false, nil
}

// SetStartTime stores v as today's start. A start already stored today is
// never overwritten.
func (t *Tracker) SetStartTime(ctx context.Context, chatID int64, v string) error {
	v = strings.TrimSpace(v)
	if _, err := shift.Parse(v); err != nil {
		return err
	}
	cur, ok, err := t.StartTime(ctx, chatID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrStartAlreadySet, cur)
	}
	if err := t.store.StoreDaily(ctx, chatID, KeyStartTime, v, t.Now()); err != nil {
		return fmt.Errorf("store start time: %w", err)
	}
	t.started(ctx, chatID, v)
	return nil
}

func (t *Tracker) started(ctx context.Context, chatID int64, start string) {
	t.log.Info("shift started", logx.ChatID(chatID), logx.String("start", start))
	ev := eventbus.ShiftStarted{ChatID: chatID, Start: start}
	if in, err := t.Input(ctx, chatID); err == nil {
		if end, err := in.End(); err == nil {
			ev.End = end.String()
		}
	}
	eventbus.Emit(t.bus, eventbus.TypeShiftStarted, ev)
}

// SetLeisure stores today's leisure deduction, replacing any earlier value.
func (t *Tracker) SetLeisure(ctx context.Context, chatID int64, v string) error {
	v = strings.TrimSpace(v)
	if _, err := shift.Parse(v); err != nil {
		return err
	}
	if t.store == nil {
		return ErrNoStore
	}
	if err := t.store.StoreDaily(ctx, chatID, KeyLeisureTime, v, t.Now()); err != nil {
		return fmt.Errorf("store leisure time: %w", err)
	}
	t.log.Debug("leisure set", logx.ChatID(chatID), logx.String("leisure", v))
	return nil
}

// Setting returns the global setting key, or def when unset.
func (t *Tracker) Setting(ctx context.Context, key, def string) (string, error) {
	if t.store == nil {
		return def, nil
	}
	v, ok, err := t.store.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	return v, nil
}

// Input assembles today's shift for chatID.
func (t *Tracker) Input(ctx context.Context, chatID int64) (shift.Input, error) {
	start, ok, err := t.StartTime(ctx, chatID)
	if err != nil {
		return shift.Input{}, err
	}
	if !ok {
		return shift.Input{}, ErrMissingStartTime
	}
	cfg := t.config()
	work, err := t.Setting(ctx, KeyWorkTime, cfg.WorkTime)
	if err != nil {
		return shift.Input{}, err
	}
	lunch, err := t.Setting(ctx, KeyLunchTime, cfg.LunchTime)
	if err != nil {
		return shift.Input{}, err
	}
	leisure, _, err := t.store.GetDaily(ctx, chatID, KeyLeisureTime, t.Now())
	if err != nil {
		return shift.Input{}, err
	}
	return shift.Input{Start: start, Work: work, Lunch: lunch, Leisure: leisure}, nil
}

// Report is today's shift as shown to the user.
type Report struct {
	ChatID    int64  `json:"chat_id"`
	Start     string `json:"start"`
	Work      string `json:"work"`
	Lunch     string `json:"lunch"`
	Leisure   string `json:"leisure,omitempty"`
	End       string `json:"end"`
	Remaining string `json:"remaining"`
}

func (r Report) String() string {
	return fmt.Sprintf("Time remaining until work turn finishes at %s.\nRemaining time: %s", r.End, r.Remaining)
}

func (t *Tracker) WorkEnd(ctx context.Context, chatID int64) (Report, error) {
	in, err := t.Input(ctx, chatID)
	if err != nil {
		return Report{}, err
	}
	res, err := in.Compute(t.Now())
	if err != nil {
		return Report{}, err
	}
	return Report{
		ChatID:    chatID,
		Start:     in.Start,
		Work:      in.Work,
		Lunch:     in.Lunch,
		Leisure:   in.Leisure,
		End:       res.End.String(),
		Remaining: res.Remaining,
	}, nil
}

// OvertimeMessage is the text sent when the overtime threshold is reached.
func OvertimeMessage(after time.Duration) string {
	return fmt.Sprintf("⏰ Liquidated overtime threshold reached! (%d minutes after work end)", int(after/time.Minute))
}

// NotifyShiftEnd schedules the end-of-shift message for chatID, replacing
// one scheduled earlier. It returns the end time.
func (t *Tracker) NotifyShiftEnd(ctx context.Context, chatID int64, target kit.ChatTarget) (string, error) {
	in, err := t.Input(ctx, chatID)
	if err != nil {
		return "", err
	}
	end, err := in.End()
	if err != nil {
		return "", err
	}
	secs, err := in.SecondsToEnd(t.Now())
	if err != nil {
		return "", err
	}
	if err := t.replace(chatID, KindShiftEnd, time.Duration(secs)*time.Second, target, MsgShiftEnd); err != nil {
		return "", err
	}
	return end.String(), nil
}

// NotifyOvertime schedules the overtime-threshold message. If the threshold
// is already behind, nothing is scheduled and reached is true.
func (t *Tracker) NotifyOvertime(ctx context.Context, chatID int64, target kit.ChatTarget) (at time.Time, reached bool, err error) {
	in, err := t.Input(ctx, chatID)
	if err != nil {
		return time.Time{}, false, err
	}
	after := t.config().OvertimeAfter
	now := t.Now()
	secs, err := in.SecondsToOvertime(now, after)
	if err != nil {
		return time.Time{}, false, err
	}
	if secs <= 0 {
		return time.Time{}, true, nil
	}
	delay := time.Duration(secs) * time.Second
	if err := t.replace(chatID, KindOvertime, delay, target, OvertimeMessage(after)); err != nil {
		return time.Time{}, false, err
	}
	return now.Add(delay), false, nil
}

func (t *Tracker) replace(chatID int64, kind string, delay time.Duration, target kit.ChatTarget, text string) error {
	if t.notes == nil {
		return notifier.ErrStopped
	}
	if target.ChatID == 0 {
		target.ChatID = chatID
	}
	h, err := t.notes.ScheduleMessage(delay, notifier.Message{Target: target, Kind: kind, Text: text})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", kind, err)
	}
	key := pendingKey{chatID, kind}
	t.mu.Lock()
	old := t.pending[key]
	t.pending[key] = h
	t.mu.Unlock()
	h.OnDone(func() { t.release(key, h) })
	if old != nil && old.Cancel() {
		t.log.Debug("replaced pending notification", logx.ChatID(chatID), logx.String("kind", kind), logx.String("old", old.ID()))
	}
	return nil
}

// release drops h from the pending map unless it was replaced meanwhile.
func (t *Tracker) release(key pendingKey, h *notifier.Handle) {
	t.mu.Lock()
	if t.pending[key] == h {
		delete(t.pending, key)
	}
	t.mu.Unlock()
}

// Pending lists scheduled notifications that have not fired yet.
func (t *Tracker) Pending() []notifier.Pending {
	if t.notes == nil {
		return nil
	}
	return t.notes.Pending()
}

// PendingFor returns the handle of chatID's pending notification of kind.
func (t *Tracker) PendingFor(chatID int64, kind string) *notifier.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[pendingKey{chatID, kind}]
}
