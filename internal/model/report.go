package model

import (
	"time"

	"gorm.io/gorm"
)

// ReportStatus is the final outcome recorded for an intercepted email
type ReportStatus string

const (
	ReportSent    ReportStatus = "sent"
	ReportBlocked ReportStatus = "blocked"
	ReportError   ReportStatus = "error"
	ReportFailed  ReportStatus = "failed"
)

// MaxReportMessageLength caps the stored message body, in characters
const MaxReportMessageLength = 10000

// Report represents the log entry of one intercepted email
type Report struct {
	ID              uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Date            time.Time      `json:"date" gorm:"not null;index"`
	TraceID         string         `json:"trace_id" gorm:"type:varchar(36);index"`
	Subject         string         `json:"subject" gorm:"type:varchar(998)"`
	Sender          string         `json:"sender" gorm:"type:varchar(255)"`
	Recipients      string         `json:"recipients" gorm:"type:text"`
	Message         string         `json:"message" gorm:"type:text"`
	Status          ReportStatus   `json:"status" gorm:"type:varchar(20);not null;index"`
	Log             string         `json:"log" gorm:"type:text"`
	AntiSpamEnabled bool           `json:"anti_spam_enabled"`
	IsSpam          bool           `json:"is_spam"`
	RoutingRuleID   *uint          `json:"routing_rule_id" gorm:"index"`
	ProviderName    string         `json:"provider_name" gorm:"type:varchar(100)"`
	DeletedAt       gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for Report
func (Report) TableName() string {
	return "reports"
}

// TruncateMessage shortens a body to the stored size cap
func TruncateMessage(body string) string {
	runes := []rune(body)
	if len(runes) <= MaxReportMessageLength {
		return body
	}
	return string(runes[:MaxReportMessageLength])
}
