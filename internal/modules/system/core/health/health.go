package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/system/settings"
	pkgmail "github.com/inkwell-cms/core/internal/pkg/mail"
	"github.com/inkwell-cms/core/internal/pkg/response"
)

const pingTimeout = 2 * time.Second

// Pinger is a dependency the health endpoint probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Mailer interface {
	Send(ctx context.Context, msg pkgmail.Message) error
}

type SettingsReader interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type Handler struct {
	checks   map[string]Pinger
	mailer   Mailer
	settings SettingsReader
}

// NewHandler probes every named check. A nil check is reported as disabled.
func NewHandler(checks map[string]Pinger, mailer Mailer, st SettingsReader) *Handler {
	return &Handler{checks: checks, mailer: mailer, settings: st}
}

func (h *Handler) RegisterRoutes(public, admin *gin.RouterGroup) {
	public.GET("/health", h.health)
	admin.POST("/health/email/test", middleware.RequireRole(models.RoleAdmin), h.emailTest)
}

// GET /health answers 503 when any configured dependency fails its ping.
func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if check == nil {
			deps[name] = "disabled"
			continue
		}
		if err := check.Ping(ctx); err != nil {
			deps[name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}
	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// POST /health/email/test sends a test message to the configured admin email.
func (h *Handler) emailTest(c *gin.Context) {
	st, err := h.settings.Get(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if st.AdminEmail == "" {
		response.UnprocessableEntity(c, "admin email is not set")
		return
	}
	html, err := pkgmail.RenderAdminAlert(pkgmail.AdminAlertData{
		SiteName: st.SiteName,
		Title:    "Mail test",
		Text:     "Mail delivery is configured correctly.",
	})
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if err := h.mailer.Send(c.Request.Context(), pkgmail.Message{
		To:      []string{st.AdminEmail},
		Subject: "[" + st.SiteName + "] Mail test",
		HTML:    html,
		Text:    "Mail delivery is configured correctly.",
	}); err != nil {
		response.UnprocessableEntity(c, err.Error())
		return
	}
	response.OK(c, gin.H{"sentTo": st.AdminEmail})
}
