package notifier

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cartellino/internal/eventbus"
	rtsup "cartellino/internal/runtime/supervisor"
	kit "cartellino/internal/transport"
	logx "cartellino/pkg/logx"
)

var (
	ErrStopped  = errors.New("notifier stopped")
	ErrNoSender = errors.New("notifier has no sender")
)

const (
	defaultRatePerSec  = 3
	defaultSendTimeout = 10 * time.Second
)

// Service schedules deferred deliveries. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	sup     *rtsup.Supervisor
	stopped bool
	pending map[string]*Handle
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender:  sender,
		log:     log.Component("notifier"),
		bus:     bus,
		pending: map[string]*Handle{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	s.cfg = cfg
	// burst = rate per sec so short spikes don't block too hard
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start makes the service accept schedules. Deliveries get a context derived
// from ctx. Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil && !s.stopped {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// one failed delivery must not take the others down
		rtsup.WithCancelOnError(false),
	)
	s.stopped = false
}

// Stop cancels every pending delivery and waits for running ones until ctx
// is done. Later schedules fail with ErrStopped.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup == nil || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	sup := s.sup
	hs := make([]*Handle, 0, len(s.pending))
	for _, h := range s.pending {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h.Cancel()
	}
	if len(hs) > 0 {
		s.log.Info("pending notifications canceled", logx.Int("count", len(hs)))
	}
	err := sup.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		sup.Cancel()
	}
	return err
}

// Supervisor returns the delivery supervisor (nil before Start).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Schedule runs deliver once after delay. A delay <= 0 fires right away.
// deliver runs on a supervised goroutine with the service context.
func (s *Service) Schedule(delay time.Duration, deliver func(ctx context.Context)) (*Handle, error) {
	return s.schedule(delay, Message{}, deliver)
}

// ScheduleMessage sends msg after delay through the sender.
func (s *Service) ScheduleMessage(delay time.Duration, msg Message) (*Handle, error) {
	if s.sender == nil {
		return nil, ErrNoSender
	}
	h, err := s.schedule(delay, msg, nil)
	if err != nil {
		return nil, err
	}
	eventbus.Emit(s.bus, eventbus.TypeNotifyScheduled, s.event(h, nil))
	s.log.Debug("notification scheduled",
		logx.String("id", h.id),
		logx.ChatID(msg.Target.ChatID),
		logx.String("kind", msg.Kind),
		logx.Time("at", h.at),
	)
	return h, nil
}

func (s *Service) schedule(delay time.Duration, msg Message, deliver func(ctx context.Context)) (*Handle, error) {
	if delay < 0 {
		delay = 0
	}
	h := &Handle{
		id:   uuid.NewString(),
		at:   time.Now().Add(delay),
		msg:  msg,
		svc:  s,
		done: make(chan struct{}),
	}
	if deliver == nil {
		deliver = func(ctx context.Context) { s.deliverMessage(ctx, h) }
	}

	s.mu.Lock()
	if s.sup == nil || s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.pending[h.id] = h
	h.timer = time.AfterFunc(delay, func() { s.fire(h, deliver) })
	s.mu.Unlock()
	return h, nil
}

func (s *Service) fire(h *Handle, deliver func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !h.state.CompareAndSwap(statePending, stateFired) {
		return
	}
	delete(s.pending, h.id)
	if s.stopped {
		h.finish()
		return
	}
	s.sup.Go0("notify.deliver", func(ctx context.Context) {
		defer h.finish()
		deliver(ctx)
	})
}

func (s *Service) forget(h *Handle) {
	s.mu.Lock()
	delete(s.pending, h.id)
	s.mu.Unlock()
}

func (s *Service) canceled(h *Handle) {
	if h.msg.Kind == "" && h.msg.Text == "" {
		return
	}
	eventbus.Emit(s.bus, eventbus.TypeNotifyCanceled, s.event(h, nil))
	s.log.Debug("notification canceled", logx.String("id", h.id), logx.ChatID(h.msg.Target.ChatID), logx.String("kind", h.msg.Kind))
}

func (s *Service) deliverMessage(ctx context.Context, h *Handle) {
	_, err := s.Send(ctx, h.msg.Target, h.msg.Text, h.msg.Options)
	if err != nil {
		s.log.Warn("notification delivery failed",
			logx.String("id", h.id),
			logx.ChatID(h.msg.Target.ChatID),
			logx.String("kind", h.msg.Kind),
			logx.Err(err),
		)
		eventbus.Emit(s.bus, eventbus.TypeNotifyFailed, s.event(h, err))
		return
	}
	s.log.Info("notification delivered", logx.String("id", h.id), logx.ChatID(h.msg.Target.ChatID), logx.String("kind", h.msg.Kind))
	eventbus.Emit(s.bus, eventbus.TypeNotifyDelivered, s.event(h, nil))
}

// Send delivers text now, waiting for the rate limiter and bounded by the
// send timeout.
func (s *Service) Send(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.sender == nil {
		return kit.MessageRef{}, ErrNoSender
	}
	if strings.TrimSpace(text) == "" {
		return kit.MessageRef{}, errors.New("empty message")
	}
	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.sender.SendText(cctx, to, text, opt)
}

// Pending lists deliveries that have not fired, soonest first.
func (s *Service) Pending() []Pending {
	s.mu.Lock()
	out := make([]Pending, 0, len(s.pending))
	for _, h := range s.pending {
		out = append(out, h.pending())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func (s *Service) event(h *Handle, err error) eventbus.Notification {
	n := eventbus.Notification{ID: h.id, ChatID: h.msg.Target.ChatID, Kind: h.msg.Kind, At: h.at}
	if err != nil {
		n.Err = err.Error()
	}
	return n
}
