package model

import (
	"time"

	"gorm.io/gorm"

	"smart-mail-router/internal/pattern"
)

// DefaultRulePriority marks the catch-all routing rule
const DefaultRulePriority = -1

// RoutingRule represents a pattern-matched routing policy in the database
type RoutingRule struct {
	ID                  uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Name                string         `json:"name" gorm:"type:varchar(255);not null"`
	SubjectPatterns     string         `json:"subject_patterns" gorm:"type:text"`
	PatternType         pattern.Type   `json:"pattern_type" gorm:"type:varchar(20);not null;default:wildcard"`
	DefaultProviderName string         `json:"default_provider_name" gorm:"type:varchar(100)"`
	Recipients          string         `json:"recipients" gorm:"type:text"`
	AntiSpamEnabled     bool           `json:"anti_spam_enabled" gorm:"default:false"`
	Enabled             bool           `json:"enabled" gorm:"default:true"`
	Priority            int            `json:"priority" gorm:"not null;index"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for RoutingRule
func (RoutingRule) TableName() string {
	return "routing_rules"
}

// IsDefault reports whether this is the catch-all rule
func (r *RoutingRule) IsDefault() bool {
	return r.Priority == DefaultRulePriority
}

// Patterns returns the rule's pattern list
func (r *RoutingRule) Patterns() []string {
	return pattern.Split(r.SubjectPatterns)
}

// RecipientOverride returns the addresses that replace the original
// recipients, or nil when the rule keeps them.
func (r *RoutingRule) RecipientOverride() []string {
	return pattern.Split(r.Recipients)
}
