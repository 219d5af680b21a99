package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/MeliDesk/app/models"
	"github.com/ManuelReschke/MeliDesk/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"github.com/qmuntal/stateless"
	"gorm.io/datatypes"
)

// Trigger moves a question between lifecycle states.
type Trigger string

const (
	// TriggerComplete closes a question that was answered on the marketplace.
	TriggerComplete Trigger = "complete"
	// TriggerFail records a failure reason.
	TriggerFail Trigger = "fail"
	// TriggerDispatched keeps the question in PROCESSING once the automation accepted it.
	TriggerDispatched Trigger = "dispatched"
	// TriggerApprove is fired by the answer approval flow.
	TriggerApprove Trigger = "approve"
)

// Notifier receives real-time question events.
type Notifier interface {
	EmitNewQuestion(ctx context.Context, question *models.Question, account *models.Account) error
	EmitQuestionProcessing(ctx context.Context, mlQuestionID, organizationID string) error
}

// Lifecycle owns every status change of a question: it validates the transition,
// persists the row and performs the side effects that belong to it.
type Lifecycle struct {
	questions repository.QuestionRepository
	auditLogs repository.AuditLogRepository
	notifier  Notifier
	now       func() time.Time
}

func NewLifecycle(questions repository.QuestionRepository, auditLogs repository.AuditLogRepository, notifier Notifier) *Lifecycle {
	return &Lifecycle{
		questions: questions,
		auditLogs: auditLogs,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Create inserts q and announces it. Notification failures are logged only.
func (l *Lifecycle) Create(ctx context.Context, q *models.Question, account *models.Account) error {
	if q.ReceivedAt.IsZero() {
		q.ReceivedAt = l.now()
	}
	if err := l.questions.Create(ctx, q); err != nil {
		return err
	}

	if l.notifier == nil {
		return nil
	}
	if err := l.notifier.EmitNewQuestion(ctx, q, account); err != nil {
		log.Warnf("[Lifecycle] Failed to emit new question event for %s: %v", q.MLQuestionID, err)
	}
	if q.Status == models.QuestionStatusProcessing {
		if err := l.notifier.EmitQuestionProcessing(ctx, q.MLQuestionID, q.OrganizationID); err != nil {
			log.Warnf("[Lifecycle] Failed to emit processing event for %s: %v", q.MLQuestionID, err)
		}
	}
	return nil
}

// Fire applies trigger to q. change may adjust fields of the new state before it is
// stored. On error q is left untouched.
func (l *Lifecycle) Fire(ctx context.Context, q *models.Question, trigger Trigger, change func(next *models.Question)) error {
	next := *q
	sm := l.machine(&next)

	if err := sm.FireCtx(ctx, trigger); err != nil {
		return fmt.Errorf("question %s: %s from %s: %w", q.MLQuestionID, trigger, q.Status, err)
	}
	if change != nil {
		change(&next)
	}

	if err := l.questions.Update(ctx, &next); err != nil {
		return fmt.Errorf("question %s: persist %s: %w", q.MLQuestionID, next.Status, err)
	}

	log.Debugf("[Lifecycle] Question %s: %s -> %s (%s)", q.MLQuestionID, q.Status, next.Status, trigger)
	*q = next
	return nil
}

// Audit appends an audit log entry for q.
func (l *Lifecycle) Audit(ctx context.Context, q *models.Question, action string, metadata map[string]any) error {
	entry := &models.AuditLog{
		Action:         action,
		EntityType:     models.AuditEntityQuestion,
		EntityID:       q.ID,
		OrganizationID: q.OrganizationID,
		AccountID:      q.AccountID,
		Metadata:       datatypes.JSONMap(metadata),
	}
	if err := l.auditLogs.Append(ctx, entry); err != nil {
		return fmt.Errorf("audit %s for question %s: %w", action, q.MLQuestionID, err)
	}
	return nil
}

func (l *Lifecycle) machine(q *models.Question) *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return q.Status, nil
		},
		func(_ context.Context, state stateless.State) error {
			q.Status = state.(models.QuestionStatus)
			return nil
		},
		stateless.FiringImmediate,
	)

	sm.Configure(models.QuestionStatusProcessing).
		Permit(TriggerComplete, models.QuestionStatusCompleted).
		Permit(TriggerFail, models.QuestionStatusFailed).
		Permit(TriggerApprove, models.QuestionStatusAnswered).
		PermitReentry(TriggerDispatched).
		OnEntryFrom(TriggerDispatched, func(_ context.Context, _ ...any) error {
			now := l.now()
			q.ProcessedAt = &now
			return nil
		})

	sm.Configure(models.QuestionStatusCompleted).
		OnEntry(func(_ context.Context, _ ...any) error {
			now := l.now()
			if q.ProcessedAt == nil {
				q.ProcessedAt = &now
			}
			return nil
		})

	sm.Configure(models.QuestionStatusFailed).
		OnEntry(func(_ context.Context, _ ...any) error {
			now := l.now()
			q.FailedAt = &now
			return nil
		})

	sm.Configure(models.QuestionStatusAnswered).
		OnEntry(func(_ context.Context, _ ...any) error {
			now := l.now()
			q.AnsweredAt = &now
			return nil
		})

	return sm
}
