package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/formbase/formbase/internal/access"
	"github.com/formbase/formbase/internal/audit"
	"github.com/formbase/formbase/internal/config"
	"github.com/formbase/formbase/internal/db"
	"github.com/formbase/formbase/internal/forms"
	"github.com/formbase/formbase/internal/http/api/formsapi"
	"github.com/formbase/formbase/internal/http/api/front"
	"github.com/formbase/formbase/internal/http/api/public"
	v1 "github.com/formbase/formbase/internal/http/api/v1"
	"github.com/formbase/formbase/internal/logging"
	"github.com/formbase/formbase/internal/mail"
	"github.com/formbase/formbase/internal/metrics"
	"github.com/formbase/formbase/internal/ratelimit"
	"github.com/formbase/formbase/internal/storage"
	"github.com/formbase/formbase/internal/util"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the HTTP server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	appCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCloser, errLog := logging.Setup(logging.Options{
		Level:      appCfg.Logging.Level,
		Format:     appCfg.Logging.Format,
		File:       appCfg.Logging.File,
		MaxSizeMB:  appCfg.Logging.MaxSizeMB,
		MaxBackups: appCfg.Logging.MaxBackups,
		MaxAgeDays: appCfg.Logging.MaxAgeDays,
		Compress:   appCfg.Logging.Compress,
	})
	if errLog != nil {
		return errLog
	}
	defer func() {
		if errClose := logCloser.Close(); errClose != nil {
			fmt.Printf("close log file: %v\n", errClose)
		}
	}()

	conn, err := db.Open(appCfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	engine, errBuild := buildEngine(ctx, conn, appCfg)
	if errBuild != nil {
		return errBuild
	}

	server := &http.Server{
		Addr:              appCfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("formbase listening on %s (public url %s)", appCfg.Server.Addr, appCfg.PublicURL())
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serveErr <- errServe
		}
		close(serveErr)
	}()

	select {
	case errServe, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("http server shutdown: %w", errShutdown)
	}
	return nil
}

// buildEngine wires every component onto a gin engine. Background workers stop with ctx.
func buildEngine(ctx context.Context, conn *gorm.DB, cfg config.Config) (*gin.Engine, error) {
	limiter, errLimiter := buildLimiter(ctx, cfg.RateLimit)
	if errLimiter != nil {
		return nil, errLimiter
	}

	throttle := ratelimit.NewIPThrottle(cfg.Submissions.PerIPRate, cfg.Submissions.PerIPBurst)
	throttle.Start(ctx)

	auditLogger := audit.NewLogger(conn)
	if cleaner := audit.NewRetentionCleaner(conn, cfg.Audit.RetentionDays); cleaner != nil {
		cleaner.Start(ctx)
	}

	mailer := mail.New(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	uploader, errUploader := storage.NewDiskUploader(uploadDir(cfg.Storage), uploadBaseURL(cfg), cfg.Storage.MaxUploadMB<<20)
	if errUploader != nil {
		return nil, errUploader
	}

	formService := forms.NewService(conn)
	formsHandler := formsapi.NewHandler(formService)

	engine := gin.New()
	engine.Use(logging.GinRecovery(), logging.GinLogger(), metrics.GinMiddleware())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	if cfg.Storage.Serve {
		engine.Static("/uploads", uploader.Dir())
	}

	public.RegisterRoutes(engine, public.NewSubmissionHandler(formService, uploader, mailer, throttle, public.Options{
		PublicURL:     cfg.PublicURL(),
		HoneypotField: cfg.Submissions.HoneypotField,
		MaxBodyBytes:  cfg.Submissions.MaxBodyMB << 20,
	}))
	v1.RegisterRoutes(engine, v1.Dependencies{
		DB:            conn,
		Authenticator: access.NewAPIKeyAuthenticator(conn),
		Limiter:       limiter,
		Audit:         auditLogger,
		Forms:         formsHandler,
		PublicURL:     cfg.PublicURL(),
	})
	front.RegisterFrontRoutes(engine, front.Dependencies{
		DB:           conn,
		JWT:          cfg.JWT,
		CookieSecure: cfg.Server.CookieSecure,
		PublicURL:    cfg.PublicURL(),
		Mailer:       mailer,
		Forms:        formService,
	})

	return engine, nil
}

// buildLimiter returns a Redis-backed limiter when redis_url is set, otherwise an in-memory fixed window.
func buildLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Limiter, error) {
	if cfg.RedisURL != "" {
		client, errClient := ratelimit.NewRedisClient(cfg.RedisURL)
		if errClient != nil {
			return nil, errClient
		}
		if errPing := client.Ping(ctx).Err(); errPing != nil {
			return nil, fmt.Errorf("rate limit redis ping: %w", errPing)
		}
		go func() {
			<-ctx.Done()
			if errClose := client.Close(); errClose != nil {
				log.WithError(errClose).Warn("close rate limit redis client")
			}
		}()
		log.Info("api rate limiting uses redis")
		return ratelimit.NewRedisLimiter(client, cfg.Window, cfg.MaxRequests), nil
	}
	limiter := ratelimit.NewFixedWindow(cfg.Window, cfg.MaxRequests)
	limiter.Start(ctx)
	return limiter, nil
}

func uploadDir(cfg config.StorageConfig) string {
	if cfg.Dir != "" {
		return cfg.Dir
	}
	if writable := util.WritablePath(); writable != "" {
		return filepath.Join(writable, "uploads")
	}
	return filepath.Join("data", "uploads")
}

func uploadBaseURL(cfg config.Config) string {
	if cfg.Storage.PublicBaseURL != "" {
		return cfg.Storage.PublicBaseURL
	}
	return cfg.PublicURL() + "/uploads"
}
