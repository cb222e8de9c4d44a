package models

import "time"

// Recipient selection modes for a notification.
const (
	RecipientAll    = "all"
	RecipientRecent = "recent"
	RecipientCustom = "custom"
)

// Notification lifecycle.
const (
	NotificationDraft     = "draft"
	NotificationScheduled = "scheduled"
	NotificationSending   = "sending"
	NotificationSent      = "sent"
	NotificationFailed    = "failed"
)

// EmailNotificationModel is an admin-authored email campaign.
type EmailNotificationModel struct {
	Base
	Subject       string      `json:"subject"       gorm:"size:255;not null"`
	Content       string      `json:"content"       gorm:"type:longtext"`
	RecipientType string      `json:"recipientType" gorm:"size:16;not null"`
	RecipientList StringArray `json:"recipientList" gorm:"type:longtext"`
	Status        string      `json:"status"        gorm:"size:16;not null;index"`
	SentCount     int         `json:"sentCount"     gorm:"not null"`
	FailedCount   int         `json:"failedCount"   gorm:"not null"`
	ScheduledAt   *time.Time  `json:"scheduledAt"   gorm:"index"`
	SentAt        *time.Time  `json:"sentAt"`
	ErrorMessage  string      `json:"errorMessage,omitempty" gorm:"type:text"`
	CreatedBy     string      `json:"createdBy"     gorm:"size:191"`
	PostID        *string     `json:"postId,omitempty"       gorm:"type:char(36);index"`
}

func (EmailNotificationModel) TableName() string { return "email_notifications" }

// Editable reports whether the campaign can still be changed.
func (n EmailNotificationModel) Editable() bool {
	return n.Status == NotificationDraft || n.Status == NotificationScheduled
}
