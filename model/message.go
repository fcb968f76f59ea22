package model

import (
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// MessageType tags the payload so clients can route it to the right view.
type MessageType string

const (
	// MessageTypeHelp is a help alert broadcast.
	MessageTypeHelp MessageType = "help"

	// MessageTypeChat is a chat line posted to a group conversation.
	MessageTypeChat MessageType = "chat"

	// MessageTypeNotification is a personal or general notification.
	MessageTypeNotification MessageType = "notification"

	// MessageTypeSystem is an operational message (welcome, heartbeat).
	MessageTypeSystem MessageType = "system"
)

// Message is the ephemeral payload fanned out to connections.
// Messages are never persisted by the core and are immutable once published:
// every subscriber receives the same value.
type Message struct {
	ID         string      `json:"id"`
	Type       MessageType `json:"type"`
	Text       string      `json:"message"`
	Sender     string      `json:"sender,omitempty"`
	Attributes Attributes  `json:"attributes,omitempty"`
	SentAt     time.Time   `json:"sentAt"`
}

// NewMessage creates a message with a fresh id and the current time.
func NewMessage(typ MessageType, text, sender string) Message {
	return Message{
		ID:     uuid.NewString(),
		Type:   typ,
		Text:   text,
		Sender: sender,
		SentAt: time.Now(),
	}
}

// WithAttribute returns a copy of m carrying the extra attribute.
func (m Message) WithAttribute(key, value string) Message {
	attrs := m.Attributes.Clone()
	if attrs == nil {
		attrs = Attributes{}
	}
	attrs[key] = value
	m.Attributes = attrs
	return m
}

// Validate checks the message before it enters a dispatch.
func (m Message) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Type, validation.Required,
			validation.In(MessageTypeHelp, MessageTypeChat, MessageTypeNotification, MessageTypeSystem)),
		validation.Field(&m.Text, validation.Required, validation.Length(1, 4096)),
		validation.Field(&m.Sender, validation.Length(0, 100)),
	)
}

// Envelope carries a message between processes over a bridge.
// Origin identifies the node that published it so a relay can drop its own echoes.
type Envelope struct {
	Origin  string  `json:"origin"`
	Topic   string  `json:"topic"`
	Message Message `json:"message"`
}

// EncodeEnvelope renders env as the JSON wire format shared by every bridge.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses the JSON wire format.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
