package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(MessageTypeChat, "hello", "alice")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, MessageTypeChat, msg.Type)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "alice", msg.Sender)
	assert.Nil(t, msg.Attributes)
	assert.WithinDuration(t, time.Now(), msg.SentAt, time.Second)

	other := NewMessage(MessageTypeChat, "hello", "alice")
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestMessage_WithAttribute(t *testing.T) {
	base := NewMessage(MessageTypeSystem, "welcome", "")
	first := base.WithAttribute("a", "1")
	second := first.WithAttribute("b", "2")

	assert.Nil(t, base.Attributes)
	assert.Equal(t, Attributes{"a": "1"}, first.Attributes)
	assert.Equal(t, Attributes{"a": "1", "b": "2"}, second.Attributes)
	assert.Equal(t, base.ID, second.ID)
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{
			name: "valid chat",
			msg:  NewMessage(MessageTypeChat, "hi", "bob"),
		},
		{
			name:    "missing text",
			msg:     NewMessage(MessageTypeChat, "", "bob"),
			wantErr: true,
		},
		{
			name:    "unknown type",
			msg:     NewMessage(MessageType("shout"), "hi", "bob"),
			wantErr: true,
		},
		{
			name:    "missing type",
			msg:     Message{Text: "hi"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAttributes_Clone(t *testing.T) {
	var empty Attributes
	assert.Nil(t, empty.Clone())

	orig := Attributes{"k": "v"}
	cp := orig.Clone()
	cp["k"] = "changed"

	require.Equal(t, "v", orig["k"])
	assert.Equal(t, "changed", cp["k"])
}

func TestEnvelope_WireFormat(t *testing.T) {
	msg := NewMessage(MessageTypeHelp, "bob needs help", "bob").WithAttribute("helpAlertId", "3")
	env := Envelope{Origin: "node-a", Topic: TopicNotifications, Message: msg}

	data, err := EncodeEnvelope(env)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"origin":"node-a"`)
	assert.Contains(t, string(data), `"message":"bob needs help"`)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.Origin, got.Origin)
	assert.Equal(t, env.Topic, got.Topic)
	assert.Equal(t, msg.ID, got.Message.ID)
	assert.Equal(t, msg.Attributes, got.Message.Attributes)
	assert.True(t, msg.SentAt.Equal(got.Message.SentAt))

	_, err = DecodeEnvelope([]byte("{not json"))
	assert.Error(t, err)
}
