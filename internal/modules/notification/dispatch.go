package notification

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"net/url"
	"strings"
	"sync"

	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/system/settings"
	pkgmail "github.com/inkwell-cms/core/internal/pkg/mail"
	"github.com/inkwell-cms/core/internal/pkg/markdown"
	"github.com/inkwell-cms/core/internal/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const schedulerActor = "scheduler"

var sendableStatuses = []string{
	models.NotificationDraft,
	models.NotificationScheduled,
	models.NotificationFailed,
}

// Send delivers an existing campaign now.
func (s *Service) Send(ctx context.Context, actor, id string) (*models.EmailNotificationModel, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.claim(ctx, n); err != nil {
		return nil, err
	}
	return s.deliver(ctx, actor, n)
}

// SendInline stores the campaign and delivers it in one step.
func (s *Service) SendInline(ctx context.Context, actor string, dto *SendDTO) (*models.EmailNotificationModel, error) {
	if strings.TrimSpace(dto.Subject) == "" || strings.TrimSpace(dto.Content) == "" {
		return nil, ErrInlineIncomplete
	}
	list := models.StringArray(dto.RecipientList).Compact(true)
	if err := validateRecipients(dto.RecipientType, list); err != nil {
		return nil, err
	}
	n := &models.EmailNotificationModel{
		Subject:       strings.TrimSpace(dto.Subject),
		Content:       dto.Content,
		RecipientType: dto.RecipientType,
		RecipientList: list,
		Status:        models.NotificationSending,
		CreatedBy:     actor,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return s.deliver(ctx, actor, n)
}

// SendDue delivers scheduled campaigns whose time has come. It returns how
// many were sent.
func (s *Service) SendDue(ctx context.Context) (int, error) {
	var due []models.EmailNotificationModel
	if err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.NotificationScheduled, s.now()).
		Order("scheduled_at ASC").Find(&due).Error; err != nil {
		return 0, err
	}
	sent := 0
	for i := range due {
		n := &due[i]
		if err := s.claim(ctx, n); err != nil {
			if !errors.Is(err, ErrNotSendable) {
				return sent, err
			}
			continue
		}
		if _, err := s.deliver(ctx, schedulerActor, n); err != nil {
			s.logger.Warn("scheduled notification failed", zap.String("id", n.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// claim moves the row to sending; only one caller can win.
func (s *Service) claim(ctx context.Context, n *models.EmailNotificationModel) error {
	res := s.db.WithContext(ctx).Model(&models.EmailNotificationModel{}).
		Where("id = ? AND status IN ?", n.ID, sendableStatuses).
		Update("status", models.NotificationSending)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotSendable
	}
	n.Status = models.NotificationSending
	return nil
}

// deliver resolves recipients, sends and writes the outcome back. The send
// is detached from ctx cancellation so a dropped client cannot leave the row
// stuck in sending.
func (s *Service) deliver(ctx context.Context, actor string, n *models.EmailNotificationModel) (*models.EmailNotificationModel, error) {
	ctx = context.WithoutCancel(ctx)

	recipients, invalid, err := s.resolveRecipients(ctx, n)
	if err != nil {
		outcome := Outcome{Err: "resolve recipients: " + err.Error()}
		if ferr := s.finish(ctx, actor, n, outcome); ferr != nil {
			s.logger.Error("record notification failure", zap.String("id", n.ID), zap.Error(ferr))
		}
		return nil, err
	}

	outcome := s.dispatch(ctx, n, recipients)
	outcome.Failed += len(invalid)
	outcome.Invalid = invalid
	if outcome.Err == "" && len(invalid) > 0 && outcome.Sent == 0 {
		outcome.Err = "no valid recipient addresses"
	}
	if err := s.finish(ctx, actor, n, outcome); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) finish(ctx context.Context, actor string, n *models.EmailNotificationModel, o Outcome) error {
	status := models.NotificationSent
	if o.Sent == 0 {
		status = models.NotificationFailed
		if o.Err == "" {
			o.Err = "no recipients"
		}
	}
	now := s.now()
	updates := map[string]interface{}{
		"status":        status,
		"sent_count":    o.Sent,
		"failed_count":  o.Failed,
		"sent_at":       now,
		"error_message": o.Err,
	}
	if err := s.db.WithContext(ctx).Model(&models.EmailNotificationModel{}).
		Where("id = ?", n.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("record notification outcome: %w", err)
	}

	n.Status = status
	n.SentCount = o.Sent
	n.FailedCount = o.Failed
	n.SentAt = &now
	n.ErrorMessage = o.Err
	metrics.NotificationsSent.WithLabelValues(status).Inc()

	s.logger.Info("notification delivered",
		zap.String("id", n.ID),
		zap.String("status", status),
		zap.Int("sent", o.Sent),
		zap.Int("failed", o.Failed))
	s.log(ctx, models.ActivityNotificationSent,
		fmt.Sprintf("Sent %q to %d recipients (%d failed)", n.Subject, o.Sent, o.Failed), n, actor)
	return nil
}

// dispatch renders one message per recipient and sends them in batches with
// bounded parallelism.
func (s *Service) dispatch(ctx context.Context, n *models.EmailNotificationModel, recipients []recipient) Outcome {
	if len(recipients) == 0 {
		return Outcome{Err: "no recipients"}
	}
	st := s.currentSettings(ctx)

	body, err := markdown.Render(n.Content)
	if err != nil {
		return Outcome{Failed: len(recipients), Err: "render content: " + err.Error()}
	}
	plain := markdown.PlainText(n.Content)

	msgs := make([]pkgmail.Message, 0, len(recipients))
	for _, r := range recipients {
		unsub := s.unsubscribeLink(st, r.Token)
		html, err := pkgmail.RenderNewsletter(pkgmail.NewsletterData{
			SiteName:       st.SiteName,
			Subject:        n.Subject,
			Body:           template.HTML(body),
			Footer:         st.NewsletterFooter,
			UnsubscribeURL: unsub,
		})
		if err != nil {
			return Outcome{Failed: len(recipients), Err: "render template: " + err.Error()}
		}
		msg := pkgmail.Message{
			To:      []string{r.Email},
			Subject: n.Subject,
			HTML:    html,
			Text:    plain,
		}
		if unsub != "" {
			msg.Text += "\n\nUnsubscribe: " + unsub
			msg.Headers = map[string]string{"List-Unsubscribe": "<" + unsub + ">"}
		}
		msgs = append(msgs, msg)
	}

	var (
		mu       sync.Mutex
		sent     int
		failed   int
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for start := 0; start < len(msgs); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(msgs))
		batch := msgs[start:end]
		g.Go(func() error {
			errs := s.mailer.SendBatch(gctx, batch)
			mu.Lock()
			defer mu.Unlock()
			for i := range batch {
				var err error
				if i < len(errs) {
					err = errs[i]
				} else {
					err = errors.New("mailer returned no result")
				}
				if err == nil {
					sent++
					continue
				}
				failed++
				if firstErr == nil {
					firstErr = err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	o := Outcome{Sent: sent, Failed: failed}
	if firstErr != nil {
		o.Err = firstErr.Error()
	}
	return o
}

// resolveRecipients expands the recipient mode. Custom addresses that do not
// parse are returned separately so they count as failed.
func (s *Service) resolveRecipients(ctx context.Context, n *models.EmailNotificationModel) ([]recipient, []string, error) {
	base := s.db.WithContext(ctx).Model(&models.SubscriberModel{}).Select("email", "token")
	var out []recipient

	switch n.RecipientType {
	case models.RecipientAll:
		err := base.Where("is_active = ?", true).Order("subscribed_at ASC").Scan(&out).Error
		return out, nil, err
	case models.RecipientRecent:
		since := s.now().Add(-s.opts.RecentWindow)
		err := base.Where("is_active = ? AND subscribed_at >= ?", true, since).
			Order("subscribed_at ASC").Scan(&out).Error
		return out, nil, err
	case models.RecipientCustom:
		valid, invalid := splitAddresses(n.RecipientList)
		if len(valid) == 0 {
			return nil, invalid, nil
		}
		var known []recipient
		if err := base.Where("email IN ?", valid).Scan(&known).Error; err != nil {
			return nil, nil, err
		}
		tokens := make(map[string]string, len(known))
		for _, k := range known {
			tokens[strings.ToLower(k.Email)] = k.Token
		}
		out = make([]recipient, len(valid))
		for i, addr := range valid {
			out[i] = recipient{Email: addr, Token: tokens[addr]}
		}
		return out, invalid, nil
	default:
		return nil, nil, ErrInvalidRecipientType
	}
}

// splitAddresses dedupes and lowercases the list, separating bare addresses
// that parse from those that do not.
func splitAddresses(list models.StringArray) (valid, invalid []string) {
	for _, addr := range list.Compact(true) {
		parsed, err := mail.ParseAddress(addr)
		if err != nil || !strings.EqualFold(parsed.Address, addr) {
			invalid = append(invalid, addr)
			continue
		}
		valid = append(valid, addr)
	}
	return valid, invalid
}

func (s *Service) currentSettings(ctx context.Context) settings.Settings {
	if s.settings == nil {
		return settings.Defaults()
	}
	st, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Warn("load settings failed, using defaults", zap.Error(err))
		return settings.Defaults()
	}
	return st
}

func (s *Service) unsubscribeLink(st settings.Settings, token string) string {
	if token == "" {
		return ""
	}
	base := s.opts.UnsubscribeURL
	if base == "" && st.SiteURL != "" {
		base = strings.TrimRight(st.SiteURL, "/") + "/api/unsubscribe"
	}
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
