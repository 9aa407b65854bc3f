package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// LedgerChangedMessage tells consumers that a user's ledger data moved on.
// Kind names what changed (transactions, categories, budget) and is
// informational; consumers drop every cached view of the user.
type LedgerChangedMessage struct {
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var ErrMissingUserID = errors.New("ledger event without userId")

func NewLedgerChangedMessage(userID, kind string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		UserID:    userID,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message and rejects ones that carry
// no user.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, ErrMissingUserID
	}
	return &msg, nil
}
