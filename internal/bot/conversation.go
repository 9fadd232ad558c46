package bot

import "sync"

type convState int

const (
	stateIdle convState = iota
	stateAwaitStart
	stateAwaitLeisure
)

func (s convState) String() string {
	switch s {
	case stateAwaitStart:
		return "await_start"
	case stateAwaitLeisure:
		return "await_leisure"
	default:
		return "idle"
	}
}

// conversations tracks which answer each chat owes the bot.
type conversations struct {
	mu sync.Mutex
	m  map[int64]convState
}

func newConversations() *conversations {
	return &conversations{m: map[int64]convState{}}
}

func (c *conversations) get(chatID int64) convState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[chatID]
}

func (c *conversations) set(chatID int64, s convState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == stateIdle {
		delete(c.m, chatID)
		return
	}
	c.m[chatID] = s
}

func (c *conversations) reset(chatID int64) { c.set(chatID, stateIdle) }
