// Package repository persists rules, providers, settings and reports with
// gorm.
package repository

import (
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"smart-mail-router/internal/metrics"
)

var (
	// ErrNotFound means the requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrInvalid means a write was rejected by validation
	ErrInvalid = errors.New("invalid input")
	// ErrProtected means the record cannot be changed in the requested way
	ErrProtected = errors.New("record is protected")
	// ErrConflict means a record with the same unique key already exists
	ErrConflict = errors.New("record already exists")
)

// Sealer encrypts and decrypts credentials at rest
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Repository is the gorm-backed store
type Repository struct {
	db      *gorm.DB
	box     Sealer
	metrics *metrics.Metrics

	mu        sync.RWMutex
	listeners []func()
}

// New creates a repository. m may be nil.
func New(db *gorm.DB, box Sealer, m *metrics.Metrics) *Repository {
	return &Repository{db: db, box: box, metrics: m}
}

// OnChange registers fn to run after every settings or provider write
func (r *Repository) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Repository) notify() {
	r.mu.RLock()
	listeners := append([]func(){}, r.listeners...)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
