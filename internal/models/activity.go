package models

// Activity types written by the modules.
const (
	ActivityPostCreated         = "post_created"
	ActivityPostUpdated         = "post_updated"
	ActivityPostPublished       = "post_published"
	ActivityPostDeleted         = "post_deleted"
	ActivityCategoryCreated     = "category_created"
	ActivityCategoryUpdated     = "category_updated"
	ActivityCategoryDeleted     = "category_deleted"
	ActivitySubscriberJoined    = "subscriber_joined"
	ActivitySubscriberLeft      = "subscriber_left"
	ActivitySubscriberDeleted   = "subscriber_deleted"
	ActivityNotificationSent    = "notification_sent"
	ActivityNotificationCreated = "notification_created"
	ActivitySettingsUpdated     = "settings_updated"
	ActivityUserRoleChanged     = "user_role_changed"
	ActivityBackupCreated       = "backup_created"
)

// ActivityLogModel is an append-only audit entry shown on the dashboard.
type ActivityLogModel struct {
	Base
	Type      string                 `json:"type"      gorm:"size:64;index;not null"`
	Title     string                 `json:"title"     gorm:"size:255"`
	Details   string                 `json:"details"   gorm:"type:text"`
	Metadata  map[string]interface{} `json:"metadata"  gorm:"type:longtext;serializer:json"`
	CreatedBy string                 `json:"createdBy" gorm:"size:191"`
}

func (ActivityLogModel) TableName() string { return "activity_logs" }
