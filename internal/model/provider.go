package model

import (
	"time"

	"gorm.io/gorm"
)

// Encryption is the transport security used to reach an SMTP provider
type Encryption string

const (
	EncryptionNone Encryption = "none"
	EncryptionSSL  Encryption = "ssl"
	EncryptionTLS  Encryption = "tls"
)

// Valid reports whether e is a supported encryption mode
func (e Encryption) Valid() bool {
	switch e {
	case EncryptionNone, EncryptionSSL, EncryptionTLS:
		return true
	}
	return false
}

// Provider represents a named SMTP transport configuration.
// Password holds the encrypted credential.
type Provider struct {
	ID           uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Name         string         `json:"name" gorm:"type:varchar(100);not null;uniqueIndex"`
	Server       string         `json:"server" gorm:"type:varchar(255)"`
	Port         int            `json:"port"`
	Encryption   Encryption     `json:"encryption" gorm:"type:varchar(10);not null;default:tls"`
	AuthRequired bool           `json:"auth_required" gorm:"default:true"`
	Username     string         `json:"username" gorm:"type:varchar(255)"`
	Password     string         `json:"-" gorm:"type:text"`
	Sender       string         `json:"sender" gorm:"type:varchar(255)"`
	Configured   bool           `json:"configured" gorm:"default:false"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for Provider
func (Provider) TableName() string {
	return "providers"
}

// IsConfigured derives the configured flag from the connection fields
func (p *Provider) IsConfigured() bool {
	if p.Server == "" || p.Port <= 0 {
		return false
	}
	if p.AuthRequired && (p.Username == "" || p.Password == "") {
		return false
	}
	return true
}
