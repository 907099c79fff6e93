package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/mailer"
	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pipeline"
	"smart-mail-router/internal/provider"
	"smart-mail-router/internal/repository"
	"smart-mail-router/internal/scheduler"
	"smart-mail-router/internal/spam"
)

// Store is the persistence the admin API needs
type Store interface {
	ListRules(ctx context.Context, filter repository.RuleFilter) ([]model.RoutingRule, error)
	GetRule(ctx context.Context, id uint) (*model.RoutingRule, error)
	CreateRule(ctx context.Context, rule *model.RoutingRule) error
	UpdateRule(ctx context.Context, id uint, update *model.RoutingRule) (*model.RoutingRule, error)
	SetRuleEnabled(ctx context.Context, id uint, enabled bool) (*model.RoutingRule, error)
	DeleteRule(ctx context.Context, id uint) error

	ListProviders(ctx context.Context, filter repository.ProviderFilter) ([]model.Provider, error)
	GetProviderByName(ctx context.Context, name string) (*model.Provider, error)
	CreateProvider(ctx context.Context, p *model.Provider, password string) error
	UpdateProvider(ctx context.Context, name string, update *model.Provider, password *string) (*model.Provider, error)
	DeleteProvider(ctx context.Context, name string) error

	GetSettings(ctx context.Context) (*model.Settings, error)
	UpdateSettings(ctx context.Context, update repository.SettingsUpdate) (*model.Settings, error)

	ListReports(ctx context.Context, filter repository.ReportFilter) ([]model.Report, int64, error)
	GetReport(ctx context.Context, id uint) (*model.Report, error)
	DeleteReport(ctx context.Context, id uint) error
	DeleteReportsOlderThan(ctx context.Context, days int) (int64, error)
	PurgeExpiredReports(ctx context.Context) (int64, error)
}

// Interceptor makes routing decisions
type Interceptor interface {
	Intercept(ctx context.Context, payload model.MailPayload) pipeline.Result
}

// Relay intercepts and delivers email
type Relay interface {
	Send(ctx context.Context, payload model.MailPayload) (*mailer.SendResult, error)
	SendTest(ctx context.Context, conn provider.Connection, to string) error
}

// SpamChecker talks to the spam-scoring API
type SpamChecker interface {
	Decide(ctx context.Context, message, apiKey, endpoint string) spam.Decision
	ValidateKey(ctx context.Context, apiKey, endpoint string) error
}

// RetentionJob controls the report retention scheduler
type RetentionJob interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) (int64, error)
	Status() scheduler.Status
}

// Options holds the dependencies of Handlers
type Options struct {
	Store       Store
	Interceptor Interceptor
	Relay       Relay
	Spam        SpamChecker
	Scheduler   RetentionJob
	Box         provider.Decrypter

	// ExposeCredentials puts the provider password in intercept responses.
	// Leave it off while the API is unauthenticated.
	ExposeCredentials bool

	// Ping checks the database connection
	Ping func(ctx context.Context) error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store       Store
	interceptor Interceptor
	relay       Relay
	spam        SpamChecker
	scheduler   RetentionJob
	box         provider.Decrypter
	credentials bool
	ping        func(ctx context.Context) error
}

// NewHandlers creates new HTTP handlers
func NewHandlers(opts Options) *Handlers {
	return &Handlers{
		store:       opts.Store,
		interceptor: opts.Interceptor,
		relay:       opts.Relay,
		spam:        opts.Spam,
		scheduler:   opts.Scheduler,
		box:         opts.Box,
		credentials: opts.ExposeCredentials,
		ping:        opts.Ping,
	}
}

// SetupRoutes sets up all HTTP routes. Routes under /api/v1 pass through
// the given middleware.
func (h *Handlers) SetupRoutes(router *gin.Engine, middleware ...gin.HandlerFunc) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1", middleware...)
	{
		api.POST("/mail/intercept", h.InterceptMail)
		api.POST("/mail/send", h.SendMail)

		api.GET("/rules", h.GetRules)
		api.POST("/rules", h.CreateRule)
		api.GET("/rules/:id", h.GetRule)
		api.PUT("/rules/:id", h.UpdateRule)
		api.DELETE("/rules/:id", h.DeleteRule)
		api.PATCH("/rules/:id/enable", h.EnableRule)
		api.PATCH("/rules/:id/disable", h.DisableRule)

		api.GET("/providers", h.GetProviders)
		api.POST("/providers", h.CreateProvider)
		api.GET("/providers/:name", h.GetProvider)
		api.PUT("/providers/:name", h.UpdateProvider)
		api.DELETE("/providers/:name", h.DeleteProvider)
		api.POST("/providers/:name/test", h.TestProvider)

		api.GET("/settings", h.GetSettings)
		api.PATCH("/settings", h.UpdateSettings)

		api.POST("/spam/test", h.TestSpam)
		api.POST("/spam/validate-key", h.ValidateSpamKey)

		api.GET("/reports", h.GetReports)
		api.GET("/reports/:id", h.GetReport)
		api.DELETE("/reports/:id", h.DeleteReport)
		api.POST("/reports/purge", h.PurgeReports)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunRetention)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Metrics:   make(map[string]string),
	}

	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			response.Status = "error"
			response.Database = "error"
			logrus.Errorf("Database health check failed: %v", err)
		}
	}

	if h.scheduler != nil {
		status := h.scheduler.Status()
		if status.Running {
			response.Metrics["scheduler"] = "running"
			response.Metrics["next_run"] = status.NextRun.Format(time.RFC3339)
		} else {
			response.Metrics["scheduler"] = "stopped"
		}
		if !status.LastRun.IsZero() {
			response.Metrics["last_run"] = status.LastRun.Format(time.RFC3339)
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// respondStoreError maps repository errors onto HTTP responses
func respondStoreError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
			Code:    http.StatusNotFound,
		})
	case errors.Is(err, repository.ErrInvalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
	case errors.Is(err, repository.ErrProtected):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "protected",
			Message: err.Error(),
			Code:    http.StatusConflict,
		})
	case errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
			Code:    http.StatusConflict,
		})
	default:
		logrus.Errorf("%s: %v", message, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: message,
			Code:    http.StatusInternalServerError,
		})
	}
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   code,
		Message: message,
		Code:    http.StatusBadRequest,
	})
}

func parseID(c *gin.Context, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		badRequest(c, "invalid_id", "Invalid "+what+" ID")
		return 0, false
	}
	return uint(id), true
}

// settingsOrDefault loads the settings row, falling back to the defaults
func (h *Handlers) settingsOrDefault(ctx context.Context) (*model.Settings, error) {
	settings, err := h.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = model.DefaultSettings()
	}
	return settings, nil
}
