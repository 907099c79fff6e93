package model

import "time"

// DefaultLogsRetentionDays applies when no settings row exists
const DefaultLogsRetentionDays = 30

// Settings is the singleton global configuration row.
// AntiSpamAPIKey holds the encrypted key.
type Settings struct {
	ID                      uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	DefaultProviderName     string    `json:"default_provider_name" gorm:"type:varchar(100)"`
	AntiSpamEndPoint        string    `json:"anti_spam_end_point" gorm:"type:varchar(512)"`
	AntiSpamAPIKey          string    `json:"-" gorm:"column:anti_spam_api_key;type:text"`
	AntiSpamSubjectPatterns string    `json:"anti_spam_subject_patterns" gorm:"type:text"`
	TestRecipient           string    `json:"test_recipient" gorm:"type:varchar(255)"`
	SpamTestMessage         string    `json:"spam_test_message" gorm:"type:text"`
	LogsRetentionDays       int       `json:"logs_retention_days" gorm:"default:30"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// TableName specifies the table name for Settings
func (Settings) TableName() string {
	return "settings"
}

// DefaultSettings returns the values used when no settings row exists
func DefaultSettings() *Settings {
	return &Settings{
		DefaultProviderName: "other",
		SpamTestMessage:     "Congratulations! You have been selected to receive a free prize. Click here now to claim your reward.",
		LogsRetentionDays:   DefaultLogsRetentionDays,
	}
}
