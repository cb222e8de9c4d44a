package models

import "time"

// SubscriberModel is a newsletter recipient. Token backs the one-click
// unsubscribe link and is never exposed over the API.
type SubscriberModel struct {
	Base
	Email          string     `json:"email"          gorm:"size:191;uniqueIndex;not null"`
	IsActive       bool       `json:"isActive"       gorm:"not null;index"`
	SubscribedAt   time.Time  `json:"subscribedAt"   gorm:"index"`
	UnsubscribedAt *time.Time `json:"unsubscribedAt"`
	Token          string     `json:"-"              gorm:"size:64;uniqueIndex"`
}

func (SubscriberModel) TableName() string { return "subscribers" }
