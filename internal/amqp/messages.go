package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sonrial/family-budget/internal/core"
)

// MessageVersion is bumped when the envelope layout changes.
const MessageVersion = 1

// LedgerEventMessage is the wire envelope of a ledger event. The worker
// treats it as a notification; the ledger itself stays the source of truth.
type LedgerEventMessage struct {
	Version   int              `json:"version"`
	Event     core.LedgerEvent `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewLedgerEventMessage(ev core.LedgerEvent) *LedgerEventMessage {
	return &LedgerEventMessage{
		Version:   MessageVersion,
		Event:     ev,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes and checks an envelope. Messages that
// fail here are poison and must not be requeued.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Version != MessageVersion {
		return nil, fmt.Errorf("unsupported message version %d", msg.Version)
	}
	switch msg.Event.Type {
	case core.EventPosted, core.EventUpdated, core.EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Event.Type)
	}
	if msg.Event.TransactionID == "" {
		return nil, errors.New("event without transaction id")
	}
	return &msg, nil
}
