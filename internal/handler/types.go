package handler

import (
	"time"

	"smart-mail-router/internal/mailer"
	"smart-mail-router/internal/model"
	"smart-mail-router/internal/scheduler"
	"smart-mail-router/internal/spam"
)

// RoutingRuleRequest represents the request structure for creating/updating
// routing rules. On update, omitted fields keep their stored value.
type RoutingRuleRequest struct {
	Name                *string `json:"name"`
	SubjectPatterns     *string `json:"subject_patterns"`
	PatternType         *string `json:"pattern_type"`
	DefaultProviderName *string `json:"default_provider_name"`
	Recipients          *string `json:"recipients"`
	AntiSpamEnabled     *bool   `json:"anti_spam_enabled"`
	Enabled             *bool   `json:"enabled"`
	Priority            *int    `json:"priority"`
}

// ProviderRequest represents the request structure for creating/updating
// providers. Password is plaintext; omit it to keep the stored credential.
type ProviderRequest struct {
	Name         string           `json:"name"`
	Server       string           `json:"server"`
	Port         int              `json:"port"`
	Encryption   model.Encryption `json:"encryption"`
	AuthRequired *bool            `json:"auth_required"`
	Username     string           `json:"username"`
	Password     *string          `json:"password"`
	Sender       string           `json:"sender"`
}

// ProviderTestRequest names the recipient of a provider test email
type ProviderTestRequest struct {
	To string `json:"to"`
}

// SettingsResponse is the settings row without the sealed API key
type SettingsResponse struct {
	*model.Settings
	AntiSpamAPIKeySet bool `json:"anti_spam_api_key_set"`
}

// SpamTestRequest overrides the stored spam test message
type SpamTestRequest struct {
	Message string `json:"message"`
}

// ValidateKeyRequest overrides the stored spam API credentials
type ValidateKeyRequest struct {
	APIKey   string `json:"api_key"`
	EndPoint string `json:"end_point"`
}

// PurgeRequest sets an explicit retention period for a manual purge
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days"`
}

// RuleRef identifies the rule that governed an email
type RuleRef struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// ConnectionResponse carries the SMTP parameters the host must apply,
// including the decrypted password
type ConnectionResponse struct {
	Provider   string           `json:"provider"`
	Host       string           `json:"host"`
	Port       int              `json:"port"`
	Encryption model.Encryption `json:"encryption"`
	Auth       bool             `json:"auth"`
	Username   string           `json:"username,omitempty"`
	Password   string           `json:"password,omitempty"`
}

// InterceptResponse is the routing decision for one email
type InterceptResponse struct {
	TraceID     string              `json:"trace_id"`
	State       string              `json:"state"`
	Blocked     bool                `json:"blocked"`
	PassThrough bool                `json:"pass_through"`
	Error       string              `json:"error,omitempty"`
	Payload     model.MailPayload   `json:"payload"`
	SenderEmail string              `json:"sender_email,omitempty"`
	SenderName  string              `json:"sender_name,omitempty"`
	Rule        *RuleRef            `json:"rule,omitempty"`
	Connection  *ConnectionResponse `json:"connection,omitempty"`
	Spam        spam.Decision       `json:"spam"`
	ReportID    uint                `json:"report_id,omitempty"`
	Trace       []string            `json:"trace"`
}

// SendResponse is the result of relaying one email
type SendResponse struct {
	*mailer.SendResult
	Error string `json:"error,omitempty"`
}

// ReportListResponse is one page of reports
type ReportListResponse struct {
	Reports    []model.Report `json:"reports"`
	Pagination Pagination     `json:"pagination"`
}

// Pagination describes a page of results
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// RetentionRunResponse reports a manual retention run
type RetentionRunResponse struct {
	Deleted int64            `json:"deleted"`
	Status  scheduler.Status `json:"status"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
