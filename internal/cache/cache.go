// Package cache memoizes settings and provider lookups between store
// change events.
package cache

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/model"
)

// Loader reads settings and providers from storage. Both methods return
// nil without error when the record does not exist.
type Loader interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	GetProviderByName(ctx context.Context, name string) (*model.Provider, error)
}

// Cache holds the settings row and providers by name until Invalidate is
// called. It is safe for concurrent use.
type Cache struct {
	loader Loader

	mu        sync.RWMutex
	settings  *model.Settings
	providers map[string]*model.Provider

	// generation counts invalidations. A load only stores its result when
	// no invalidation happened while it ran.
	generation uint64
}

// New creates an empty cache backed by loader
func New(loader Loader) *Cache {
	return &Cache{
		loader:    loader,
		providers: make(map[string]*model.Provider),
	}
}

// Settings returns the global settings, falling back to the hardcoded
// defaults when no row exists or storage is unavailable. Defaults loaded
// after a storage error are not cached.
func (c *Cache) Settings(ctx context.Context) *model.Settings {
	c.mu.RLock()
	s := c.settings
	gen := c.generation
	c.mu.RUnlock()
	if s != nil {
		cp := *s
		return &cp
	}

	loaded, err := c.loader.GetSettings(ctx)
	if err != nil {
		logrus.Errorf("Failed to load settings, using defaults: %v", err)
		return model.DefaultSettings()
	}
	if loaded == nil {
		loaded = model.DefaultSettings()
	}

	c.mu.Lock()
	if c.generation == gen {
		c.settings = loaded
	}
	c.mu.Unlock()

	cp := *loaded
	return &cp
}

// Provider returns the provider with the given name, or nil when none
// exists.
func (c *Cache) Provider(ctx context.Context, name string) (*model.Provider, error) {
	c.mu.RLock()
	p, ok := c.providers[name]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		if p == nil {
			return nil, nil
		}
		cp := *p
		return &cp, nil
	}

	loaded, err := c.loader.GetProviderByName(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.providers[name] = loaded
	}
	c.mu.Unlock()

	if loaded == nil {
		return nil, nil
	}
	cp := *loaded
	return &cp, nil
}

// Invalidate drops everything cached. Stores call it after every write to
// settings or providers.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.settings = nil
	c.providers = make(map[string]*model.Provider)
	c.generation++
	c.mu.Unlock()
	logrus.Debug("Settings and provider cache invalidated")
}
