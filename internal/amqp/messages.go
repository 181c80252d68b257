package amqp

import (
	"encoding/json"
	"time"
)

// LineItemSyncMessage asks the worker to mirror one stored line item to
// Google Sheets. Only the id travels; the worker loads the rest.
type LineItemSyncMessage struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLineItemSyncMessage(id int64) *LineItemSyncMessage {
	return &LineItemSyncMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *LineItemSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LineItemSyncMessageFromJSON(data []byte) (*LineItemSyncMessage, error) {
	var msg LineItemSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
