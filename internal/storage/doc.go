// Package storage persists global settings, known chats and per-chat daily
// values (start time, leisure) behind the Store interface.
//
// Drivers:
//   - "sqlite": SQLite file via modernc.org/sqlite (":memory:" works too)
//   - "redis": hashes in a Redis database
//   - "memory": process-local maps
//
// An empty driver or "none" disables storage.
package storage
