// Package event defines the envelopes that travel over the cross-process bus.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindActivity   Kind = "activity"    // [NOTIFICATION] model.Activity
	KindNewMessage Kind = "new_message" // [NOTIFICATION] model.NewMessageNotice
)

// Kinds lists every kind the hub subscribes to at start-up.
var Kinds = []Kind{KindActivity, KindNewMessage}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Topic is the broker topic (AMQP fanout exchange) for a kind.
func (k Kind) Topic() string { return "im_chat." + string(k) }

// Envelope is the wire format of every bus message.
//
// [ORIGIN] Events produced by a hub instance carry its instance id so the same
// instance does not fan them out a second time when they come back from the
// broker. Events published by other processes (REST API) leave it empty.
type Envelope struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Origin     string          `json:"origin,omitempty"`
	OccurredAt int64           `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(kind Kind, origin string, payload any) (*Envelope, error) {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("event: marshal %s payload: %w", kind, err)
		}
	}
	return &Envelope{
		ID:         uuid.NewString(),
		Kind:       kind,
		Origin:     origin,
		OccurredAt: time.Now().UnixMilli(),
		Payload:    raw,
	}, nil
}
