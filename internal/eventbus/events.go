package eventbus

import "time"

const (
	TypeShiftStarted    = "shift.started"
	TypeNotifyScheduled = "notify.scheduled"
	TypeNotifyDelivered = "notify.delivered"
	TypeNotifyFailed    = "notify.failed"
	TypeNotifyCanceled  = "notify.canceled"
	TypeStoragePruned   = "storage.pruned"
	TypeConfigReloaded  = "config.reloaded"
)

type ShiftStarted struct {
	ChatID int64
	Start  string
	End    string
}

// Notification is the payload of every notify.* event.
type Notification struct {
	ID     string
	ChatID int64
	Kind   string
	At     time.Time
	Err    string
}

type StoragePruned struct {
	Before  time.Time
	Removed int
}
