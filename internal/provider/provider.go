// Package provider resolves routing decisions into SMTP connection
// parameters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smart-mail-router/internal/model"
)

var (
	// ErrNoProvider means neither the rule nor the settings name a provider
	ErrNoProvider = errors.New("no provider configured")
	// ErrProviderNotFound means the named provider does not exist
	ErrProviderNotFound = errors.New("provider not found")
)

// Lookup finds a provider by its unique name, returning nil when absent
type Lookup interface {
	Provider(ctx context.Context, name string) (*model.Provider, error)
}

// Decrypter opens credentials sealed at rest
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Name returns the provider name a message should use: the rule's own
// provider when set, otherwise the global default.
func Name(rule *model.RoutingRule, settings *model.Settings) string {
	if rule != nil {
		if name := strings.TrimSpace(rule.DefaultProviderName); name != "" {
			return name
		}
	}
	if settings != nil {
		return strings.TrimSpace(settings.DefaultProviderName)
	}
	return ""
}

// Select resolves the provider for a routing decision
func Select(ctx context.Context, rule *model.RoutingRule, settings *model.Settings, lookup Lookup) (*model.Provider, error) {
	name := Name(rule, settings)
	if name == "" {
		return nil, ErrNoProvider
	}

	p, err := lookup.Provider(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up provider %q: %w", name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return p, nil
}

// Connection is everything the transport needs to reach a provider. The
// password is plaintext and must not outlive the delivery.
type Connection struct {
	Name       string
	Host       string
	Port       int
	Encryption model.Encryption
	Username   string
	Password   string
	Sender     string
}

// Address returns host:port
func (c Connection) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthRequired reports whether the connection carries credentials
func (c Connection) AuthRequired() bool {
	return c.Username != ""
}

// String describes the connection without its password
func (c Connection) String() string {
	user := c.Username
	if user == "" {
		user = "-"
	}
	return fmt.Sprintf("%s (%s, %s, user %s)", c.Name, c.Address(), c.Encryption, user)
}

// Connect decrypts the provider's credentials into a Connection
func Connect(p *model.Provider, box Decrypter) (Connection, error) {
	if !p.IsConfigured() {
		return Connection{}, fmt.Errorf("provider %q is not fully configured", p.Name)
	}

	conn := Connection{
		Name:       p.Name,
		Host:       p.Server,
		Port:       p.Port,
		Encryption: p.Encryption,
		Sender:     p.Sender,
	}
	if !conn.Encryption.Valid() {
		conn.Encryption = model.EncryptionNone
	}

	if p.AuthRequired {
		password, err := box.Decrypt(p.Password)
		if err != nil {
			return Connection{}, fmt.Errorf("failed to decrypt credentials for provider %q: %w", p.Name, err)
		}
		conn.Username = p.Username
		conn.Password = password
	}
	return conn, nil
}
