package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/database"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/inkwell-cms/core/internal/modules/auth/user"
	"github.com/inkwell-cms/core/internal/modules/content/category"
	"github.com/inkwell-cms/core/internal/modules/content/post"
	"github.com/inkwell-cms/core/internal/modules/content/search"
	"github.com/inkwell-cms/core/internal/modules/notification"
	"github.com/inkwell-cms/core/internal/modules/stats/dashboard"
	"github.com/inkwell-cms/core/internal/modules/storage/backup"
	"github.com/inkwell-cms/core/internal/modules/storage/upload"
	"github.com/inkwell-cms/core/internal/modules/syndication/feed"
	"github.com/inkwell-cms/core/internal/modules/syndication/subscribe"
	"github.com/inkwell-cms/core/internal/modules/system/core/health"
	"github.com/inkwell-cms/core/internal/modules/system/settings"
	"github.com/inkwell-cms/core/internal/modules/tasks"
	"github.com/inkwell-cms/core/internal/pkg/metrics"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	publicRateMax       = 300
	publicRateWindow    = time.Minute
	subscribeRateMax    = 5
	subscribeRateWindow = 10 * time.Minute
)

func (a *App) registerRoutes() {
	r := a.router
	rc := a.rc
	log := a.logger

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.NoRoute(func(c *gin.Context) {
		response.NotFoundMsg(c, "route not found")
	})

	api := r.Group("/api")

	public := api.Group("",
		middleware.OptionalAuth(a.verifier, a.svc.users, log),
		middleware.RateLimit(rc, middleware.RateLimitOptions{
			Name:              "public",
			Max:               publicRateMax,
			Window:            publicRateWindow,
			SkipAuthenticated: true,
		}),
		middleware.HTTPCache(rc, middleware.HTTPCacheOptions{
			TTL:       a.cfg.HTTPCacheTTL(),
			Disable:   !a.cfg.HTTPCache.Enable,
			SkipPaths: []string{"/api/health", "/api/unsubscribe", "/api/admin*", "/api/me"},
		}),
	)
	authed := api.Group("", middleware.Auth(a.verifier, a.svc.users, log))
	admin := api.Group("/admin",
		middleware.Auth(a.verifier, a.svc.users, log),
		middleware.Idempotence(rc),
	)

	purge := func(ctx context.Context) {
		if err := middleware.PurgeHTTPCache(ctx, rc); err != nil {
			log.Warn("purge http cache", zap.Error(err))
		}
	}
	subscribeLimit := middleware.RateLimit(rc, middleware.RateLimitOptions{
		Name:   "subscribe",
		Max:    subscribeRateMax,
		Window: subscribeRateWindow,
	})

	post.NewHandler(a.svc.posts, log, purge).RegisterRoutes(public, admin)
	category.NewHandler(a.svc.categories, purge).RegisterRoutes(public, admin)
	search.NewHandler(a.svc.search).RegisterRoutes(public)
	feed.NewHandler(a.svc.feed).RegisterRoutes(public)
	subscribe.NewHandler(a.svc.subscribers).RegisterRoutes(public, admin, subscribeLimit)
	notification.NewHandler(a.svc.notification).RegisterRoutes(admin)
	activity.NewHandler(a.svc.activity).RegisterRoutes(admin)
	user.NewHandler(a.svc.users).RegisterRoutes(authed, admin)
	settings.NewHandler(a.svc.settings).RegisterRoutes(admin)
	dashboard.NewHandler(a.svc.dashboard).RegisterRoutes(admin)
	upload.NewHandler(a.svc.uploads).RegisterRoutes(admin)
	backup.NewHandler(a.svc.backups).RegisterRoutes(admin)
	tasks.NewHandler(a.svc.tasks, a.sched).RegisterRoutes(admin)
	health.NewHandler(map[string]health.Pinger{
		"database": dbPinger(a.db),
		"redis":    rc,
	}, a.mailer, a.svc.settings).RegisterRoutes(public, admin)

	api.GET("/uptime", func(c *gin.Context) {
		response.OK(c, gin.H{"uptime": a.Uptime()})
	})
}

func dbPinger(db *gorm.DB) health.Pinger {
	return health.PingFunc(func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})
}
