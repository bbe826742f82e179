// Package queue carries pipeline messages between stages. Every message is
// a JSON Envelope naming its payload type; delivery is at-least-once.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/timmy/catalogetl/internal/domain"
)

// ErrUnknownMessage is returned for envelopes whose type no handler accepts.
var ErrUnknownMessage = errors.New("unknown message type")

// Queue sends opaque message bodies to one destination.
type Queue interface {
	Send(ctx context.Context, body []byte) error
	SendBatch(ctx context.Context, bodies [][]byte) error
}

// Handler processes one message body. A nil return acknowledges the message.
type Handler func(ctx context.Context, body []byte) error

// Envelope wraps a typed payload.
type Envelope struct {
	Type    domain.MessageType `json:"type"`
	Payload json.RawMessage    `json:"payload"`
}

// Encode wraps payload in an Envelope of the given type.
func Encode(messageType domain.MessageType, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", messageType, err)
	}
	body, err := json.Marshal(Envelope{Type: messageType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", messageType, err)
	}
	return body, nil
}

// Decode parses an Envelope from a message body.
func Decode(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: %w: empty type", ErrUnknownMessage)
	}
	return &env, nil
}

// Into decodes the payload into v.
func (e *Envelope) Into(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
