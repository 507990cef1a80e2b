package models

import "time"

// Channel states for a dispatch console's termination slot.
const (
	ChannelStateIdle       = "IDLE"
	ChannelStateTerminated = "TERMINATED"
	ChannelStateError      = "ERROR"
)

// ChannelStatus is the termination slot of one dispatch console. The set of
// request ids is seeded at startup and never grows at runtime.
type ChannelStatus struct {
	RequestID string    `json:"request_id"`
	ChannelID string    `json:"channel_id"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Operator is a dispatch console operator account.
type Operator struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// TerminationLog is one audit row per termination attempt.
type TerminationLog struct {
	ID        string // uuid
	RequestID string
	Extension string
	Channel   string // full channel identifier, empty when no match
	State     string
	Detail    string
	CreatedAt time.Time
}
