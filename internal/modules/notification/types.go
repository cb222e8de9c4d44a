package notification

import (
	"context"
	"errors"
	"time"

	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/inkwell-cms/core/internal/modules/system/settings"
	"github.com/inkwell-cms/core/internal/pkg/mail"
	"github.com/inkwell-cms/core/internal/pkg/taskqueue"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotEditable          = errors.New("only draft or scheduled notifications can be changed")
	ErrNotSendable          = errors.New("notification was already sent or is being sent")
	ErrStillSending         = errors.New("notification is being sent")
	ErrEmptyRecipientList   = errors.New("recipientList is required for custom recipients")
	ErrScheduleInPast       = errors.New("scheduledAt must be in the future")
	ErrInvalidRecipientType = errors.New("recipientType must be one of all, recent, custom")
	ErrInlineIncomplete     = errors.New("subject and content are required")
)

// TaskTypeNewsletter is the task record type for post announcements.
const TaskTypeNewsletter = "post_newsletter"

type CreateDTO struct {
	Subject       string     `json:"subject"       binding:"required,max=255"`
	Content       string     `json:"content"       binding:"required"`
	RecipientType string     `json:"recipientType" binding:"required,oneof=all recent custom"`
	RecipientList []string   `json:"recipientList"`
	ScheduledAt   *time.Time `json:"scheduledAt"`
}

type UpdateDTO struct {
	Subject       *string    `json:"subject"       binding:"omitempty,min=1,max=255"`
	Content       *string    `json:"content"       binding:"omitempty,min=1"`
	RecipientType *string    `json:"recipientType" binding:"omitempty,oneof=all recent custom"`
	RecipientList *[]string  `json:"recipientList"`
	ScheduledAt   *time.Time `json:"scheduledAt"`
	// Unschedule turns a scheduled notification back into a draft.
	Unschedule bool `json:"unschedule"`
}

// SendDTO sends an existing notification by ID, or an inline one when ID is empty.
type SendDTO struct {
	ID            string   `json:"id"`
	Subject       string   `json:"subject"`
	Content       string   `json:"content"`
	RecipientType string   `json:"recipientType"`
	RecipientList []string `json:"recipientList"`
}

type ListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=draft scheduled sending sent failed"`
}

// Mailer delivers email. *mail.Sender satisfies it.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
	SendBatch(ctx context.Context, msgs []mail.Message) []error
}

// TaskTracker records fire-and-forget dispatches. *taskqueue.Service satisfies it.
type TaskTracker interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey string) (*taskqueue.Task, bool, error)
	UpdateStatus(ctx context.Context, id string, status taskqueue.TaskStatus, result interface{}, errMsg string) error
}

// SettingsReader exposes the admin settings.
type SettingsReader interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// ActivityLogger records audit entries.
type ActivityLogger interface {
	Log(ctx context.Context, e activity.Entry)
}

// Options tunes delivery.
type Options struct {
	BatchSize      int
	Concurrency    int
	RecentWindow   time.Duration
	UnsubscribeURL string
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = 30 * 24 * time.Hour
	}
	return o
}

// recipient is one resolved address plus its unsubscribe token, if any.
type recipient struct {
	Email string
	Token string
}

// Outcome is the result of one dispatch.
type Outcome struct {
	Sent    int
	Failed  int
	Invalid []string
	Err     string
}
