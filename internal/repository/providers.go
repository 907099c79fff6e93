package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"smart-mail-router/internal/model"
)

// ProviderFilter narrows ListProviders
type ProviderFilter struct {
	Configured *bool
}

// ListProviders returns providers ordered by name
func (r *Repository) ListProviders(ctx context.Context, filter ProviderFilter) ([]model.Provider, error) {
	query := r.db.WithContext(ctx).Order("name ASC")
	if filter.Configured != nil {
		query = query.Where("configured = ?", *filter.Configured)
	}

	var providers []model.Provider
	if err := query.Find(&providers).Error; err != nil {
		return nil, fmt.Errorf("failed to get providers: %w", err)
	}
	return providers, nil
}

// GetProviderByName returns the named provider, or nil when none exists
func (r *Repository) GetProviderByName(ctx context.Context, name string) (*model.Provider, error) {
	var p model.Provider
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider %q: %w", name, err)
	}
	return &p, nil
}

// CreateProvider stores a new provider, sealing the plaintext password
func (r *Repository) CreateProvider(ctx context.Context, p *model.Provider, password string) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return invalid("provider name is required")
	}
	if err := validateProvider(p); err != nil {
		return err
	}

	existing, err := r.GetProviderByName(ctx, p.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("provider %q: %w", p.Name, ErrConflict)
	}

	if err := r.sealPassword(p, password); err != nil {
		return err
	}
	p.Configured = p.IsConfigured()

	// auth_required carries a column default, so gorm skips a false value on insert
	authRequired := p.AuthRequired
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		if !authRequired {
			p.AuthRequired = false
			return tx.Model(p).Update("auth_required", false).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	r.notify()
	return nil
}

// UpdateProvider replaces the connection fields of the named provider. A nil
// password keeps the stored credential.
func (r *Repository) UpdateProvider(ctx context.Context, name string, update *model.Provider, password *string) (*model.Provider, error) {
	p, err := r.GetProviderByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("provider %q: %w", name, ErrNotFound)
	}
	if err := validateProvider(update); err != nil {
		return nil, err
	}

	p.Server = strings.TrimSpace(update.Server)
	p.Port = update.Port
	p.Encryption = update.Encryption
	p.AuthRequired = update.AuthRequired
	p.Username = strings.TrimSpace(update.Username)
	p.Sender = strings.TrimSpace(update.Sender)
	if password != nil {
		if err := r.sealPassword(p, *password); err != nil {
			return nil, err
		}
	}
	p.Configured = p.IsConfigured()

	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, fmt.Errorf("failed to update provider: %w", err)
	}

	r.notify()
	return p, nil
}

// DeleteProvider removes the named provider. The global default provider
// cannot be deleted.
func (r *Repository) DeleteProvider(ctx context.Context, name string) error {
	p, err := r.GetProviderByName(ctx, name)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("provider %q: %w", name, ErrNotFound)
	}

	settings, err := r.GetSettings(ctx)
	if err != nil {
		return err
	}
	if settings != nil && settings.DefaultProviderName == name {
		return fmt.Errorf("%w: provider %q is the global default", ErrProtected, name)
	}

	// hard delete so the unique name can be reused
	if err := r.db.WithContext(ctx).Unscoped().Delete(p).Error; err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}

	r.notify()
	return nil
}

func (r *Repository) sealPassword(p *model.Provider, password string) error {
	if password == "" {
		p.Password = ""
		return nil
	}
	sealed, err := r.box.Encrypt(password)
	if err != nil {
		return fmt.Errorf("failed to encrypt provider password: %w", err)
	}
	p.Password = sealed
	return nil
}

func validateProvider(p *model.Provider) error {
	if p.Encryption == "" {
		p.Encryption = model.EncryptionTLS
	}
	if !p.Encryption.Valid() {
		return invalid("unsupported encryption %q", p.Encryption)
	}
	if p.Port < 0 || p.Port > 65535 {
		return invalid("port %d is out of range", p.Port)
	}
	return nil
}
