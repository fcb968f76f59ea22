package model

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Well-known topics. Topics exist only as registry keys, so any other
// non-empty name is equally valid.
const (
	// TopicNotifications is the site-wide help alert feed.
	TopicNotifications = "notifications"

	// TopicInterfaith is the shared interfaith chat room.
	TopicInterfaith = "interfaith"
)

const maxTopicLength = 200

// GroupTopic names the topic for a discussion group's conversation.
func GroupTopic(groupID int64) string {
	return fmt.Sprintf("group.%d", groupID)
}

// UserTopic names the private topic for one user's notifications.
func UserTopic(userID int64) string {
	return fmt.Sprintf("user.%d", userID)
}

// ValidateTopic rejects empty, oversized or whitespace-padded topic names.
func ValidateTopic(topic string) error {
	if strings.TrimSpace(topic) != topic {
		return fmt.Errorf("topic %q has leading or trailing whitespace", topic)
	}
	return validation.Validate(topic, validation.Required, validation.Length(1, maxTopicLength))
}
