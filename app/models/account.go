package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is a Mercado Livre seller account connected to an organization.
// The OAuth token columns back the token provider.
type Account struct {
	ID             string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrganizationID string       `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	Organization   Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	MLUserID       string       `gorm:"column:ml_user_id;type:varchar(32);not null;uniqueIndex" json:"ml_user_id"`
	Nickname       string       `gorm:"type:varchar(150);default:''" json:"nickname"`
	AccessToken    string       `gorm:"type:text" json:"-"`
	RefreshToken   string       `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time   `gorm:"type:timestamp;default:null" json:"token_expires_at,omitempty"`
	Active         bool         `gorm:"default:true;index" json:"active"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
