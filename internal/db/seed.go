package db

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pattern"
)

// DefaultRuleName names the seeded catch-all rule
const DefaultRuleName = "Default"

// ProviderTemplates are the known providers seeded at install. None carry
// credentials, so all start unconfigured.
var ProviderTemplates = []model.Provider{
	{Name: "google", Server: "smtp.gmail.com", Port: 587, Encryption: model.EncryptionTLS, AuthRequired: true},
	{Name: "outlook", Server: "smtp.office365.com", Port: 587, Encryption: model.EncryptionTLS, AuthRequired: true},
	{Name: "yahoo", Server: "smtp.mail.yahoo.com", Port: 465, Encryption: model.EncryptionSSL, AuthRequired: true},
	{Name: "zoho", Server: "smtp.zoho.com", Port: 465, Encryption: model.EncryptionSSL, AuthRequired: true},
	{Name: "sendgrid", Server: "smtp.sendgrid.net", Port: 587, Encryption: model.EncryptionTLS, AuthRequired: true, Username: "apikey"},
	{Name: "mailgun", Server: "smtp.mailgun.org", Port: 587, Encryption: model.EncryptionTLS, AuthRequired: true},
	{Name: "amazon_ses", Server: "email-smtp.us-east-1.amazonaws.com", Port: 587, Encryption: model.EncryptionTLS, AuthRequired: true},
	{Name: "other", Encryption: model.EncryptionTLS, AuthRequired: true},
}

// Seed inserts the default rule, the provider templates and the settings
// row when they are missing. It is safe to run on every start.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := seedDefaultRule(tx); err != nil {
			return err
		}
		if err := seedProviders(tx); err != nil {
			return err
		}
		return seedSettings(tx)
	})
}

func seedDefaultRule(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&model.RoutingRule{}).Where("priority = ?", model.DefaultRulePriority).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check default rule: %w", err)
	}
	if count > 0 {
		return nil
	}

	rule := model.RoutingRule{
		Name:                DefaultRuleName,
		SubjectPatterns:     "*",
		PatternType:         pattern.Wildcard,
		DefaultProviderName: "other",
		Enabled:             true,
		Priority:            model.DefaultRulePriority,
	}
	if err := tx.Create(&rule).Error; err != nil {
		return fmt.Errorf("failed to seed default rule: %w", err)
	}
	logrus.Info("Seeded default routing rule")
	return nil
}

func seedProviders(tx *gorm.DB) error {
	for _, tmpl := range ProviderTemplates {
		var existing model.Provider
		err := tx.Unscoped().Where("name = ?", tmpl.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check provider %q: %w", tmpl.Name, err)
		}

		p := tmpl
		p.Configured = p.IsConfigured()
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("failed to seed provider %q: %w", tmpl.Name, err)
		}
		logrus.Infof("Seeded provider template %s", tmpl.Name)
	}
	return nil
}

func seedSettings(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&model.Settings{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check settings: %w", err)
	}
	if count > 0 {
		return nil
	}

	if err := tx.Create(model.DefaultSettings()).Error; err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	logrus.Info("Seeded default settings")
	return nil
}
