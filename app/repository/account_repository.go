package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MeliDesk/app/models"
	"gorm.io/gorm"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// GetByID retrieves an account by its internal id, including its organization
func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Preload("Organization").Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByMLUserID retrieves an active account by the marketplace seller id
func (r *accountRepository) GetByMLUserID(ctx context.Context, mlUserID string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Preload("Organization").
		Where("ml_user_id = ? AND active = ?", mlUserID, true).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateTokens stores a refreshed OAuth token pair
func (r *accountRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	updates := map[string]interface{}{
		"access_token":     accessToken,
		"refresh_token":    refreshToken,
		"token_expires_at": expiresAt,
	}
	return r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updates).Error
}
