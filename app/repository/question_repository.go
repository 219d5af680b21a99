package repository

import (
	"context"

	"github.com/ManuelReschke/MeliDesk/app/models"
	"gorm.io/gorm"
)

// questionRepository implements the QuestionRepository interface
type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository creates a new question repository instance
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

// FindByMLQuestionID retrieves a question by its marketplace id
func (r *questionRepository) FindByMLQuestionID(ctx context.Context, mlQuestionID string) (*models.Question, error) {
	var question models.Question
	err := r.db.WithContext(ctx).Where("ml_question_id = ?", mlQuestionID).First(&question).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// GetByID retrieves a question by its internal id
func (r *questionRepository) GetByID(ctx context.Context, id string) (*models.Question, error) {
	var question models.Question
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&question).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// Create inserts a new question. The unique index on ml_question_id makes a
// concurrent duplicate fail with gorm.ErrDuplicatedKey.
func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

// Update saves all columns of an existing question
func (r *questionRepository) Update(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Save(question).Error
}

// CountByStatus returns the number of questions per status for an organization
func (r *questionRepository) CountByStatus(ctx context.Context, organizationID string) (map[models.QuestionStatus]int64, error) {
	type row struct {
		Status models.QuestionStatus
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Question{}).
		Select("status, COUNT(*) AS total").
		Where("organization_id = ?", organizationID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[models.QuestionStatus]int64, len(rows))
	for _, r := range rows {
		result[r.Status] = r.Total
	}
	return result, nil
}
