package notify

import "encoding/json"

// Event kinds carried over the queue.
const (
	KindCheckedIn = "checked_in"
	KindMissed    = "missed"
)

// Event is the payload the attendance engine publishes whenever an occurrence
// resolves; the worker turns it into a notification row.
type Event struct {
	UserID  string `json:"user_id"`
	ClassID string `json:"class_id"`
	Kind    string `json:"kind"`
	Body    string `json:"body"`
}

// Encode marshals the event for a queue message body.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a queue message body back into an Event.
func DecodeEvent(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}
