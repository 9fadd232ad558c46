package notifier

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	statePending int32 = iota
	stateFired
	stateCanceled
)

// Handle owns one scheduled delivery.
type Handle struct {
	id  string
	at  time.Time
	msg Message

	svc   *Service
	timer *time.Timer
	state atomic.Int32

	mu       sync.Mutex
	finished bool
	onDone   []func()
	done     chan struct{}
}

func (h *Handle) ID() string { return h.id }

// At is when the delivery is due.
func (h *Handle) At() time.Time { return h.at }

func (h *Handle) Kind() string { return h.msg.Kind }

// Done is closed once the delivery has run or the handle was canceled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Fired reports whether the delivery started.
func (h *Handle) Fired() bool { return h.state.Load() == stateFired }

// Cancel stops a pending delivery. It returns false if the delivery already
// started or the handle was canceled before.
func (h *Handle) Cancel() bool {
	if h == nil || !h.state.CompareAndSwap(statePending, stateCanceled) {
		return false
	}
	h.timer.Stop()
	h.svc.forget(h)
	h.svc.canceled(h)
	h.finish()
	return true
}

// OnDone runs fn once the handle is done, on the goroutine that finishes
// it. If the handle is already done fn runs right away.
func (h *Handle) OnDone(fn func()) {
	h.mu.Lock()
	if !h.finished {
		h.onDone = append(h.onDone, fn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn()
}

func (h *Handle) finish() {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return
	}
	h.finished = true
	close(h.done)
	fns := h.onDone
	h.onDone = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *Handle) pending() Pending {
	return Pending{ID: h.id, ChatID: h.msg.Target.ChatID, Kind: h.msg.Kind, At: h.at, Text: h.msg.Text}
}
