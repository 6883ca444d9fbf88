package amqp

import (
	"encoding/json"
	"time"
)

// EntrySyncMessage asks the sheet sync worker to mirror one materialized
// ledger entry to the spreadsheet. Only the id travels; the worker fetches
// the full entry from the database.
type EntrySyncMessage struct {
	EntryID   string    `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntrySyncMessage(entryID string) *EntrySyncMessage {
	return &EntrySyncMessage{
		EntryID:   entryID,
		Timestamp: time.Now(),
	}
}

func (m *EntrySyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntrySyncMessageFromJSON(data []byte) (*EntrySyncMessage, error) {
	var msg EntrySyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
