package model

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// HelpAlert is a community member's request for help.
// Submitting one persists the record and broadcasts a notification on TopicNotifications.
type HelpAlert struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	NeedHelp       string    `json:"needHelp" db:"need_help"`
	Description    string    `json:"description"`
	ContactDetails string    `json:"contactDetails" db:"contact_details"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for HelpAlert.
func (h HelpAlert) TableName() string {
	return tablePrefix + "help_alert"
}

// NewHelpAlert creates an unsaved help alert.
func NewHelpAlert(username, needHelp, description, contactDetails string) HelpAlert {
	return HelpAlert{
		Username:       username,
		NeedHelp:       needHelp,
		Description:    description,
		ContactDetails: contactDetails,
		CreatedAt:      time.Now(),
	}
}

// Validate enforces the column limits of the help alert table.
func (h HelpAlert) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&h.NeedHelp, validation.Required, validation.Length(1, 255)),
		validation.Field(&h.Description, validation.Required),
		validation.Field(&h.ContactDetails, validation.Required, validation.Length(1, 100)),
	)
}

// NotificationText is the line shown to everyone watching the help feed.
func (h HelpAlert) NotificationText() string {
	return fmt.Sprintf("%s needs help: %s. Description: %s.", h.Username, h.NeedHelp, h.Description)
}

// ToMessage renders the alert as a broadcast payload.
func (h HelpAlert) ToMessage() Message {
	msg := NewMessage(MessageTypeHelp, h.NotificationText(), h.Username)
	if h.ID != 0 {
		msg = msg.WithAttribute("helpAlertId", fmt.Sprintf("%d", h.ID))
	}
	return msg
}
