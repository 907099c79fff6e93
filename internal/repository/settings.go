package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pattern"
)

// SettingsUpdate is a partial settings change. Nil fields are left alone.
// AntiSpamAPIKey is plaintext and sealed before storage.
type SettingsUpdate struct {
	DefaultProviderName     *string `json:"default_provider_name"`
	AntiSpamEndPoint        *string `json:"anti_spam_end_point"`
	AntiSpamAPIKey          *string `json:"anti_spam_api_key"`
	AntiSpamSubjectPatterns *string `json:"anti_spam_subject_patterns"`
	TestRecipient           *string `json:"test_recipient"`
	SpamTestMessage         *string `json:"spam_test_message"`
	LogsRetentionDays       *int    `json:"logs_retention_days"`
}

// GetSettings returns the settings row, or nil when none exists
func (r *Repository) GetSettings(ctx context.Context) (*model.Settings, error) {
	var s model.Settings
	err := r.db.WithContext(ctx).Order("id ASC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &s, nil
}

// UpdateSettings applies a partial update, creating the row from defaults
// when it does not exist yet
func (r *Repository) UpdateSettings(ctx context.Context, update SettingsUpdate) (*model.Settings, error) {
	s, err := r.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = model.DefaultSettings()
	}

	if update.DefaultProviderName != nil {
		s.DefaultProviderName = strings.TrimSpace(*update.DefaultProviderName)
	}
	if update.AntiSpamEndPoint != nil {
		s.AntiSpamEndPoint = strings.TrimSpace(*update.AntiSpamEndPoint)
	}
	if update.AntiSpamAPIKey != nil {
		key := strings.TrimSpace(*update.AntiSpamAPIKey)
		if key == "" {
			s.AntiSpamAPIKey = ""
		} else {
			sealed, err := r.box.Encrypt(key)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt spam API key: %w", err)
			}
			s.AntiSpamAPIKey = sealed
		}
	}
	if update.AntiSpamSubjectPatterns != nil {
		patterns := *update.AntiSpamSubjectPatterns
		if err := pattern.Validate(pattern.Wildcard, pattern.Split(patterns)); err != nil {
			return nil, invalid("%v", err)
		}
		s.AntiSpamSubjectPatterns = patterns
	}
	if update.TestRecipient != nil {
		s.TestRecipient = strings.TrimSpace(*update.TestRecipient)
	}
	if update.SpamTestMessage != nil {
		s.SpamTestMessage = *update.SpamTestMessage
	}
	if update.LogsRetentionDays != nil {
		if *update.LogsRetentionDays < 0 {
			return nil, invalid("logs retention days cannot be negative")
		}
		s.LogsRetentionDays = *update.LogsRetentionDays
	}

	if err := r.saveSettings(ctx, s); err != nil {
		return nil, err
	}

	r.notify()
	return s, nil
}

func (r *Repository) saveSettings(ctx context.Context, s *model.Settings) error {
	db := r.db.WithContext(ctx)
	if s.ID == 0 {
		// logs_retention_days carries a column default, so a zero is written
		// with an explicit update after the insert
		days := s.LogsRetentionDays
		if err := db.Create(s).Error; err != nil {
			return fmt.Errorf("failed to create settings: %w", err)
		}
		if days == 0 {
			s.LogsRetentionDays = 0
			if err := db.Model(s).Update("logs_retention_days", 0).Error; err != nil {
				return fmt.Errorf("failed to update settings: %w", err)
			}
		}
		return nil
	}
	if err := db.Save(s).Error; err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
