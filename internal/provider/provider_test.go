package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/secret"
)

type mapLookup map[string]*model.Provider

func (m mapLookup) Provider(ctx context.Context, name string) (*model.Provider, error) {
	return m[name], nil
}

type failingLookup struct{}

func (failingLookup) Provider(ctx context.Context, name string) (*model.Provider, error) {
	return nil, errors.New("db down")
}

func TestSelectPrefersRuleProvider(t *testing.T) {
	lookup := mapLookup{
		"google": {Name: "google"},
		"other":  {Name: "other"},
	}
	settings := &model.Settings{DefaultProviderName: "other"}

	p, err := Select(context.Background(), &model.RoutingRule{DefaultProviderName: "google"}, settings, lookup)
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name)

	p, err = Select(context.Background(), &model.RoutingRule{}, settings, lookup)
	require.NoError(t, err)
	assert.Equal(t, "other", p.Name)

	p, err = Select(context.Background(), nil, settings, lookup)
	require.NoError(t, err)
	assert.Equal(t, "other", p.Name)
}

func TestSelectErrors(t *testing.T) {
	_, err := Select(context.Background(), nil, &model.Settings{}, mapLookup{})
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = Select(context.Background(), &model.RoutingRule{DefaultProviderName: "ghost"}, nil, mapLookup{})
	assert.ErrorIs(t, err, ErrProviderNotFound)

	_, err = Select(context.Background(), &model.RoutingRule{DefaultProviderName: "google"}, nil, failingLookup{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrProviderNotFound)
}

func TestConnectDecryptsCredentials(t *testing.T) {
	box, err := secret.NewBox("test-key")
	require.NoError(t, err)
	sealed, err := box.Encrypt("app-password")
	require.NoError(t, err)

	p := &model.Provider{
		Name:         "google",
		Server:       "smtp.gmail.com",
		Port:         587,
		Encryption:   model.EncryptionTLS,
		AuthRequired: true,
		Username:     "site@gmail.com",
		Password:     sealed,
		Sender:       "site@gmail.com",
	}

	conn, err := Connect(p, box)
	require.NoError(t, err)
	assert.Equal(t, "app-password", conn.Password)
	assert.Equal(t, "smtp.gmail.com:587", conn.Address())
	assert.True(t, conn.AuthRequired())
	assert.NotContains(t, conn.String(), "app-password")
}

func TestConnectRejectsUnconfigured(t *testing.T) {
	box, _ := secret.NewBox("test-key")

	_, err := Connect(&model.Provider{Name: "google", Server: "smtp.gmail.com", Port: 587, AuthRequired: true}, box)
	assert.Error(t, err)

	conn, err := Connect(&model.Provider{Name: "relay", Server: "relay.local", Port: 25, Encryption: "bogus"}, box)
	require.NoError(t, err)
	assert.Equal(t, model.EncryptionNone, conn.Encryption)
	assert.False(t, conn.AuthRequired())
}
