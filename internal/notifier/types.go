package notifier

import (
	"time"

	kit "cartellino/internal/transport"
)

// Config controls outbound sends.
type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
}

// Message is a deferred chat message. Kind groups messages of the same
// purpose ("shift_end", "overtime") for listing and events.
type Message struct {
	Target  kit.ChatTarget
	Kind    string
	Text    string
	Options *kit.SendOptions
}

// Pending describes a scheduled delivery that has not fired yet.
type Pending struct {
	ID     string    `json:"id"`
	ChatID int64     `json:"chat_id"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
	Text   string    `json:"text,omitempty"`
}
