package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/system/settings"
	pkgmail "github.com/inkwell-cms/core/internal/pkg/mail"
	"github.com/inkwell-cms/core/internal/pkg/markdown"
	"github.com/inkwell-cms/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const systemActor = "system"

// PostPublished alerts the admin and, when enabled, announces the post to
// every active subscriber. A post already being announced is skipped.
func (s *Service) PostPublished(ctx context.Context, post *models.PostModel) error {
	st := s.currentSettings(ctx)
	link := postURL(st, post)

	if st.NotifyOnPostPublished && st.AdminEmail != "" {
		if err := s.alert(ctx, st, "New post published", post.Title, link, "Read post"); err != nil {
			s.logger.Warn("post published alert failed", zap.String("post", post.ID), zap.Error(err))
		}
	}
	if !st.AutoNewsletterOnPublish {
		return nil
	}
	return s.announce(ctx, st, post, link)
}

// SubscriberJoined alerts the admin about a new subscriber.
func (s *Service) SubscriberJoined(ctx context.Context, email string) error {
	st := s.currentSettings(ctx)
	if !st.NotifyOnNewSubscriber || st.AdminEmail == "" {
		return nil
	}
	return s.alert(ctx, st, "New subscriber", email+" subscribed to the newsletter.", "", "")
}

func (s *Service) announce(ctx context.Context, st settings.Settings, post *models.PostModel, link string) error {
	var taskID string
	if s.tasks != nil {
		payload := map[string]string{"postId": post.ID, "slug": post.Slug, "title": post.Title}
		task, created, err := s.tasks.Enqueue(ctx, TaskTypeNewsletter, payload, "post:"+post.ID)
		switch {
		case err != nil:
			s.logger.Warn("track newsletter task failed", zap.String("post", post.ID), zap.Error(err))
		case !created:
			s.logger.Info("newsletter already in flight", zap.String("post", post.ID), zap.String("task", task.ID))
			return nil
		default:
			taskID = task.ID
		}
	}

	postID := post.ID
	n := &models.EmailNotificationModel{
		Subject:       post.Title,
		Content:       newsletterContent(post, link),
		RecipientType: models.RecipientAll,
		Status:        models.NotificationSending,
		CreatedBy:     systemActor,
		PostID:        &postID,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		s.finishTask(ctx, taskID, nil, err)
		return fmt.Errorf("create post newsletter: %w", err)
	}

	sent, err := s.deliver(ctx, systemActor, n)
	if err == nil && sent.Status == models.NotificationFailed {
		err = fmt.Errorf("newsletter failed: %s", sent.ErrorMessage)
	}
	s.finishTask(ctx, taskID, n, err)
	return err
}

func (s *Service) finishTask(ctx context.Context, taskID string, n *models.EmailNotificationModel, err error) {
	if taskID == "" {
		return
	}
	var result interface{}
	if n != nil {
		result = map[string]interface{}{
			"notificationId": n.ID,
			"sentCount":      n.SentCount,
			"failedCount":    n.FailedCount,
		}
	}
	status, msg := taskqueue.TaskCompleted, ""
	if err != nil {
		status, msg = taskqueue.TaskFailed, err.Error()
	}
	if uerr := s.tasks.UpdateStatus(ctx, taskID, status, result, msg); uerr != nil {
		s.logger.Warn("update newsletter task failed", zap.String("task", taskID), zap.Error(uerr))
	}
}

func (s *Service) alert(ctx context.Context, st settings.Settings, title, text, link, linkText string) error {
	html, err := pkgmail.RenderAdminAlert(pkgmail.AdminAlertData{
		SiteName: st.SiteName,
		Title:    title,
		Text:     text,
		LinkURL:  link,
		LinkText: linkText,
	})
	if err != nil {
		return err
	}
	body := text
	if link != "" {
		body += "\n\n" + link
	}
	return s.mailer.Send(ctx, pkgmail.Message{
		To:      []string{st.AdminEmail},
		Subject: fmt.Sprintf("[%s] %s", st.SiteName, title),
		HTML:    html,
		Text:    body,
	})
}

func postURL(st settings.Settings, post *models.PostModel) string {
	if st.SiteURL == "" {
		return ""
	}
	return strings.TrimRight(st.SiteURL, "/") + "/posts/" + post.Slug
}

// newsletterContent is the markdown body announcing a post.
func newsletterContent(post *models.PostModel, link string) string {
	summary := strings.TrimSpace(post.Description)
	if summary == "" {
		summary = markdown.Excerpt(post.Content, 280)
	}
	var b strings.Builder
	b.WriteString("## ")
	b.WriteString(post.Title)
	b.WriteString("\n\n")
	b.WriteString(summary)
	if link != "" {
		b.WriteString("\n\n[Read the full post](")
		b.WriteString(link)
		b.WriteString(")")
	}
	return b.String()
}
