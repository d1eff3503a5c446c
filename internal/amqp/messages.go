package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"milkman/internal/core"
)

// ChangeKind names what was written.
type ChangeKind string

const (
	ChangeOverride ChangeKind = "override"
	ChangeSettings ChangeKind = "settings"
)

// LedgerChangeMessage announces a persisted write. It carries only enough to
// locate the affected month; consumers re-read the stores.
type LedgerChangeMessage struct {
	Kind      ChangeKind `json:"kind"`
	Date      string     `json:"date,omitempty"`
	Year      int        `json:"year"`
	Month     int        `json:"month"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewOverrideChange builds the message for an override write.
func NewOverrideChange(date core.DateKey) *LedgerChangeMessage {
	m := date.Month()
	return &LedgerChangeMessage{
		Kind:      ChangeOverride,
		Date:      date.String(),
		Year:      m.Year,
		Month:     int(m.Month),
		Timestamp: time.Now(),
	}
}

// NewSettingsChange builds the message for a settings write. Settings apply
// to every month; month names the one to refresh first.
func NewSettingsChange(month core.Month) *LedgerChangeMessage {
	return &LedgerChangeMessage{
		Kind:      ChangeSettings,
		Year:      month.Year,
		Month:     int(month.Month),
		Timestamp: time.Now(),
	}
}

// AffectedMonth returns the month the change should be re-exported for.
func (m *LedgerChangeMessage) AffectedMonth() (core.Month, error) {
	return core.NewMonth(m.Year, m.Month)
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangeMessageFromJSON decodes and checks a message.
func LedgerChangeMessageFromJSON(data []byte) (*LedgerChangeMessage, error) {
	var msg LedgerChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case ChangeOverride, ChangeSettings:
	default:
		return nil, fmt.Errorf("unknown change kind %q", msg.Kind)
	}
	if _, err := msg.AffectedMonth(); err != nil {
		return nil, err
	}
	return &msg, nil
}
