package payloadlog

import (
	"encoding/json"
	"time"

	"github.com/worldline-go/types"
)

// ProcessingStatus classifies the outcome recorded alongside a logged
// payload.
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusFailure ProcessingStatus = "failure"
)

// Entry is one recorded inbound payload and its handling outcome.
type Entry struct {
	ID               string             `json:"id"`
	Timestamp        types.Time         `json:"timestamp"`
	WebhookType      string             `json:"webhook_type"`
	Token            string             `json:"token,omitempty"`
	Payload          json.RawMessage    `json:"payload"`
	SourceIP         string             `json:"source_ip"`
	UserAgent        string             `json:"user_agent"`
	ProcessingStatus ProcessingStatus   `json:"processing_status"`
	GeneratedMessage types.Null[string] `json:"generated_message"`
	ContentLength    types.Null[int]    `json:"content_length"`
}

// stamp fills in ID and Timestamp for a freshly created entry if not
// already set.
func stamp(e Entry, id string, now time.Time) Entry {
	if e.ID == "" {
		e.ID = id
	}
	if e.Timestamp.Time.IsZero() {
		e.Timestamp = types.NewTime(now)
	}
	return e
}
