package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/config"
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
	"github.com/inkwell-cms/core/internal/modules/system/settings"
	pkgcron "github.com/inkwell-cms/core/internal/pkg/cron"
	"github.com/inkwell-cms/core/internal/pkg/jwt"
	"github.com/inkwell-cms/core/internal/pkg/mail"
	pkgredis "github.com/inkwell-cms/core/internal/pkg/redis"
	"github.com/inkwell-cms/core/internal/pkg/storage"
	"github.com/inkwell-cms/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// services groups the module services shared by routes and cron jobs.
type services struct {
	activity     *activity.Service
	settings     *settings.Service
	users        *user.Service
	posts        *post.Service
	categories   *category.Service
	search       *search.Service
	subscribers  *subscribe.Service
	feed         *feed.Service
	notification *notification.Service
	dashboard    *dashboard.Service
	uploads      *upload.Service
	backups      *backup.Service
	tasks        *taskqueue.Service
}

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *gorm.DB
	rc       *pkgredis.Client
	mailer   *mail.Sender
	verifier *jwt.Verifier
	svc      services
	sched    *pkgcron.Scheduler
	logger   *zap.Logger
	cancel   context.CancelFunc
	started  time.Time
}

// New initializes the application: config → DB → Redis → services → cron → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	loc, err := applyTimezone(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	a := &App{
		cfg:      cfg,
		db:       db,
		rc:       rc,
		verifier: verifier,
		mailer:   mail.New(mail.BuildConfig(cfg.Mail), logger),
		logger:   logger,
		started:  time.Now(),
	}
	if err := a.buildServices(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())
	router.Use(cors.New(corsConfig(cfg)))
	a.router = router

	a.sched = pkgcron.New(loc, logger.Named("CronService"))
	if err := a.registerCronJobs(); err != nil {
		return nil, fmt.Errorf("cron: %w", err)
	}
	a.registerRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.sched.Start(ctx)

	logger.Info("application ready",
		zap.String("env", cfg.Env),
		zap.String("mail", a.mailer.Provider()),
		zap.Bool("mailEnabled", a.mailer.Enabled()),
		zap.String("backupStore", a.svc.backups.StoreName()),
	)
	return a, nil
}

func (a *App) buildServices() error {
	cfg, db, logger := a.cfg, a.db, a.logger

	act := activity.NewService(db, logger)
	defaults := settings.Defaults()
	if len(cfg.Auth.AdminEmails) > 0 {
		defaults.AdminEmail = cfg.Auth.AdminEmails[0]
	}
	st := settings.NewService(db, defaults, act)
	tasks := taskqueue.NewService(a.rc)

	notif := notification.NewService(notification.Deps{
		DB:       db,
		Mailer:   a.mailer,
		Tasks:    tasks,
		Settings: st,
		Activity: act,
		Logger:   logger,
	}, notification.Options{
		BatchSize:      cfg.Mail.BatchSize,
		Concurrency:    cfg.Mail.Concurrency,
		RecentWindow:   time.Duration(cfg.Newsletter.RecentWindowDays) * 24 * time.Hour,
		UnsubscribeURL: cfg.Newsletter.UnsubscribeURL,
	})
	subs := subscribe.NewService(db, act, notif, logger)

	uploadStore, backupStore, err := buildStores(cfg)
	if err != nil {
		return err
	}

	a.svc = services{
		activity:     act,
		settings:     st,
		users:        user.NewService(db, cfg.Auth.AdminEmails, act, logger),
		posts:        post.NewService(db, post.WithLogger(logger), post.WithActivity(act), post.WithNotifier(notif)),
		categories:   category.NewService(db, act),
		search:       search.NewService(db, search.WithLogger(logger)),
		subscribers:  subs,
		feed:         feed.NewService(db, st, logger),
		notification: notif,
		dashboard:    dashboard.NewService(db, subs, act),
		uploads:      upload.NewService(uploadStore, cfg.Storage.MaxUploadMB, logger),
		backups:      backup.NewService(db, backupStore, cfg.Backup.Keep, act, logger),
		tasks:        tasks,
	}
	return nil
}

// buildStores wires the public cover bucket and the archive store. Archives
// go to their own private bucket when backup.s3 is enabled and to the local
// backup directory otherwise.
func buildStores(cfg *config.AppConfig) (uploads, backups storage.Store, err error) {
	if cfg.Storage.Enable {
		s3, err := storage.NewS3Store(cfg.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		uploads = s3
	}
	if cfg.Backup.S3.Enable {
		s3, err := storage.NewPrivateS3Store(cfg.Backup.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("backup storage: %w", err)
		}
		return uploads, s3, nil
	}
	local, err := storage.NewLocalStore(cfg.BackupDir())
	if err != nil {
		return nil, nil, fmt.Errorf("backup dir: %w", err)
	}
	return uploads, local, nil
}

func newVerifier(cfg config.AuthConfig) (*jwt.Verifier, error) {
	pem := cfg.PublicKeyPEM
	if strings.TrimSpace(pem) == "" && cfg.PublicKeyFile != "" {
		loaded, err := jwt.LoadPublicKeyFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		pem = loaded
	}
	return jwt.NewVerifier(jwt.Options{
		Secret:       cfg.JWTSecret,
		PublicKeyPEM: pem,
		Issuer:       cfg.Issuer,
		Audience:     cfg.Audience,
		Leeway:       time.Duration(cfg.ClockSkewSecs) * time.Second,
	})
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length", "X-Inkwell-Cache", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		c.AllowOriginFunc = func(origin string) bool {
			return originAllowed(patterns, origin)
		}
	} else {
		c.AllowOriginFunc = func(string) bool { return true }
	}
	return c
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Uptime reports how long the application has been running.
func (a *App) Uptime() string { return humanizeDuration(time.Since(a.started)) }

// Shutdown stops background jobs and closes connections.
func (a *App) Shutdown() {
	a.cancel()
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
}
