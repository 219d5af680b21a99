package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuestionStatus is the lifecycle state of a customer question.
type QuestionStatus string

const (
	QuestionStatusProcessing QuestionStatus = "PROCESSING"
	QuestionStatusCompleted  QuestionStatus = "COMPLETED"
	QuestionStatusFailed     QuestionStatus = "FAILED"
	QuestionStatusAnswered   QuestionStatus = "ANSWERED"
)

// IsTerminal reports whether the webhook pipeline may no longer move the question.
func (s QuestionStatus) IsTerminal() bool {
	return s == QuestionStatusCompleted || s == QuestionStatusFailed || s == QuestionStatusAnswered
}

// Question is one customer question received through the marketplace webhook.
// MLQuestionID is the marketplace identifier and is unique.
type Question struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	MLQuestionID   string         `gorm:"column:ml_question_id;type:varchar(32);not null;uniqueIndex" json:"ml_question_id"`
	SequentialID   string         `gorm:"type:varchar(32);not null;uniqueIndex" json:"sequential_id"`
	AccountID      string         `gorm:"type:varchar(36);not null;index" json:"account_id"`
	OrganizationID string         `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	SellerID       string         `gorm:"type:varchar(32);default:''" json:"seller_id"`
	ItemID         string         `gorm:"type:varchar(32);default:'';index" json:"item_id"`
	ItemTitle      string         `gorm:"type:varchar(255);default:''" json:"item_title"`
	ItemPrice      float64        `gorm:"default:0" json:"item_price"`
	ItemPermalink  string         `gorm:"type:varchar(500);default:''" json:"item_permalink"`
	CustomerID     string         `gorm:"type:varchar(32);default:'';index" json:"customer_id"`
	Text           string         `gorm:"type:text" json:"text"`
	Status         QuestionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	DateCreated    *time.Time     `gorm:"type:timestamp;default:null" json:"date_created,omitempty"`
	ReceivedAt     time.Time      `gorm:"type:timestamp" json:"received_at"`
	ProcessedAt    *time.Time     `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	AnsweredAt     *time.Time     `gorm:"type:timestamp;default:null" json:"answered_at,omitempty"`
	FailedAt       *time.Time     `gorm:"type:timestamp;default:null" json:"failed_at,omitempty"`
	FailureReason  string         `gorm:"type:text" json:"failure_reason,omitempty"`
	Answer         string         `gorm:"type:text" json:"answer,omitempty"`
	AnsweredBy     string         `gorm:"type:varchar(100);default:''" json:"answered_by,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.ReceivedAt.IsZero() {
		q.ReceivedAt = time.Now()
	}
	return nil
}
