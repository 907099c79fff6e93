package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"smart-mail-router/internal/cache"
	"smart-mail-router/internal/config"
	"smart-mail-router/internal/db"
	"smart-mail-router/internal/handler"
	"smart-mail-router/internal/mailer"
	"smart-mail-router/internal/metrics"
	"smart-mail-router/internal/pipeline"
	"smart-mail-router/internal/repository"
	"smart-mail-router/internal/router"
	"smart-mail-router/internal/scheduler"
	"smart-mail-router/internal/secret"
	"smart-mail-router/internal/spam"
)

// App holds the wired components of the service
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Box         *secret.Box
	Metrics     *metrics.Metrics
	Repo        *repository.Repository
	Cache       *cache.Cache
	Spam        *spam.Client
	Interceptor *pipeline.Interceptor
	Relay       *mailer.Relay
	Scheduler   *scheduler.Scheduler
}

// LoadConfig loads and validates the configuration and applies its log
// settings
func LoadConfig() (*config.Config, error) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	return cfg, nil
}

// New connects to the database and wires every component
func New(cfg *config.Config) (*App, error) {
	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	box, err := secret.NewBox(cfg.Security.EncryptionKey)
	if err != nil {
		db.Close(dbConn)
		return nil, fmt.Errorf("failed to create credential box: %w", err)
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	repo := repository.New(dbConn, box, m)

	c := cache.New(repo)
	repo.OnChange(c.Invalidate)
	repo.RefreshRuleGauges(context.Background())

	spamClient := spam.NewClient(cfg.Spam.Timeout, cfg.Spam.KeyValidationTimeout)
	interceptor := pipeline.NewInterceptor(repo, c, spamClient, repo, box, m)
	relay := mailer.NewRelay(interceptor, mailer.NewSMTPTransport(&cfg.Relay), repo, &cfg.Relay, m)

	return &App{
		Config:      cfg,
		DB:          dbConn,
		Box:         box,
		Metrics:     m,
		Repo:        repo,
		Cache:       c,
		Spam:        spamClient,
		Interceptor: interceptor,
		Relay:       relay,
		Scheduler:   scheduler.NewScheduler(&cfg.Retention, repo),
	}, nil
}

// Close releases the database connection
func (a *App) Close() error {
	return db.Close(a.DB)
}

// Ping checks the database connection
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Handlers builds the HTTP handlers over the wired components
func (a *App) Handlers() *handler.Handlers {
	return handler.NewHandlers(handler.Options{
		Store:       a.Repo,
		Interceptor: a.Interceptor,
		Relay:       a.Relay,
		Spam:        a.Spam,
		Scheduler:   a.Scheduler,
		Box:         a.Box,
		Ping:        a.Ping,

		ExposeCredentials: a.Config.Security.APIKey != "",
	})
}

// Run initializes and starts the application
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	logrus.Info("Starting Smart Mail Router Service")

	a, err := New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logrus.Errorf("Failed to close database: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(a.Handlers(), cfg.Security.APIKey),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Retention.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		logrus.Info("Report retention scheduler disabled")
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	a.Scheduler.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
