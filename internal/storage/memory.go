package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type dailyKey struct {
	chatID int64
	key    string
	day    string
}

// Memory is a process-local Store. The zero value is not usable; use NewMemory.
type Memory struct {
	mu       sync.RWMutex
	settings map[string]string
	chats    map[int64]string
	daily    map[dailyKey]string
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{
		settings: map[string]string{},
		chats:    map[int64]string{},
		daily:    map[dailyKey]string{},
	}
}

func (m *Memory) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrDisabled
	}
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *Memory) StoreSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisabled
	}
	m.settings[key] = value
	return nil
}

func (m *Memory) Settings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrDisabled
	}
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) StoreChat(_ context.Context, chatID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisabled
	}
	m.chats[chatID] = name
	return nil
}

func (m *Memory) Chats(_ context.Context) ([]Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrDisabled
	}
	out := make([]Chat, 0, len(m.chats))
	for id, name := range m.chats {
		out = append(out, Chat{ID: id, Name: name})
	}
	sortChats(out)
	return out, nil
}

func (m *Memory) GetDaily(_ context.Context, chatID int64, key string, day time.Time) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrDisabled
	}
	v, ok := m.daily[dailyKey{chatID, key, DayKey(day)}]
	return v, ok, nil
}

func (m *Memory) StoreDaily(_ context.Context, chatID int64, key, value string, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisabled
	}
	m.daily[dailyKey{chatID, key, DayKey(day)}] = value
	return nil
}

func (m *Memory) DailyHistory(_ context.Context, chatID int64, from, to time.Time) ([]DailyValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrDisabled
	}
	lo, hi := DayKey(from), DayKey(to)
	var out []DailyValue
	for k, v := range m.daily {
		if k.chatID != chatID || k.day < lo || k.day > hi {
			continue
		}
		out = append(out, DailyValue{ChatID: chatID, Key: k.key, Value: v, Day: k.day})
	}
	sortDaily(out)
	return out, nil
}

func (m *Memory) PruneDaily(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrDisabled
	}
	cut := DayKey(before)
	var n int64
	for k := range m.daily {
		if k.day < cut {
			delete(m.daily, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func sortChats(v []Chat) {
	sort.Slice(v, func(i, j int) bool { return v[i].ID < v[j].ID })
}

func sortDaily(v []DailyValue) {
	sort.Slice(v, func(i, j int) bool {
		if v[i].Day != v[j].Day {
			return v[i].Day < v[j].Day
		}
		return v[i].Key < v[j].Key
	})
}
