package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AuditActionQuestionReceived          = "question.received"
	AuditActionQuestionOwnershipMismatch = "question.ownership_mismatch"
	AuditActionQuestionSkipped           = "question.skipped"

	AuditEntityQuestion = "question"
)

// AuditLog is an append-only record. Rows are never updated or deleted.
type AuditLog struct {
	ID             string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	Action         string            `gorm:"type:varchar(100);not null;index" json:"action"`
	EntityType     string            `gorm:"type:varchar(50);not null" json:"entity_type"`
	EntityID       string            `gorm:"type:varchar(64);not null;index" json:"entity_id"`
	OrganizationID string            `gorm:"type:varchar(36);index" json:"organization_id"`
	AccountID      string            `gorm:"type:varchar(36);index" json:"account_id"`
	Metadata       datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt      time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
