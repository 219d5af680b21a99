package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MeliDesk/app/models"
	"gorm.io/gorm"
)

// QuestionRepository defines the persistence operations the question pipeline needs.
// Lookups return gorm.ErrRecordNotFound when nothing matches and Create returns
// gorm.ErrDuplicatedKey when the marketplace question id is already stored.
type QuestionRepository interface {
	FindByMLQuestionID(ctx context.Context, mlQuestionID string) (*models.Question, error)
	GetByID(ctx context.Context, id string) (*models.Question, error)
	Create(ctx context.Context, question *models.Question) error
	Update(ctx context.Context, question *models.Question) error
	CountByStatus(ctx context.Context, organizationID string) (map[models.QuestionStatus]int64, error)
}

// AuditLogRepository is append-only.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *models.AuditLog) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error)
}

// AccountRepository resolves seller accounts and stores refreshed OAuth tokens.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByMLUserID(ctx context.Context, mlUserID string) (*models.Account, error)
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Question QuestionRepository
	AuditLog AuditLogRepository
	Account  AccountRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Question: NewQuestionRepository(db),
		AuditLog: NewAuditLogRepository(db),
		Account:  NewAccountRepository(db),
	}
}
