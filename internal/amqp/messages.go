package amqp

import (
	"encoding/json"
	"fmt"

	"tally/internal/ledger"
)

// EncodeEvent renders evt as the JSON message body.
func EncodeEvent(evt ledger.Event) ([]byte, error) {
	return json.Marshal(evt)
}

// DecodeEvent parses a message body. A body without an event type is
// rejected.
func DecodeEvent(data []byte) (ledger.Event, error) {
	var evt ledger.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return ledger.Event{}, err
	}
	if evt.Type == "" {
		return ledger.Event{}, fmt.Errorf("event without type")
	}
	return evt, nil
}
