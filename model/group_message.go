package model

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// GroupMessage is a chat line posted to a discussion group.
type GroupMessage struct {
	GroupID  int64  `json:"groupId"`
	Username string `json:"username"`
	Text     string `json:"message"`
}

// Validate checks the chat line.
func (g GroupMessage) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.GroupID, validation.Required, validation.Min(int64(1))),
		validation.Field(&g.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&g.Text, validation.Required, validation.Length(1, 4096)),
	)
}

// Topic returns the group's conversation topic.
func (g GroupMessage) Topic() string {
	return GroupTopic(g.GroupID)
}

// ToMessage renders the chat line as a broadcast payload.
func (g GroupMessage) ToMessage() Message {
	return NewMessage(MessageTypeChat, g.Text, g.Username).
		WithAttribute("groupId", fmt.Sprintf("%d", g.GroupID))
}
