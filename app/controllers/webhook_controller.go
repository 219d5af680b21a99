package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuelReschke/MeliDesk/app/repository"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/metrics"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/webhooks"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// BatchQueue is the part of the batch processor the HTTP layer uses.
type BatchQueue interface {
	AddToBatch(accountID string, event webhooks.WebhookEvent)
	Flush() bool
	GetStatus() webhooks.BatchStatus
}

// WebhookController receives marketplace notifications. It only validates, resolves the
// account and enqueues; all processing happens in the batch processor.
type WebhookController struct {
	batch         BatchQueue
	accounts      repository.AccountRepository
	validate      *validator.Validate
	applicationID string
	metrics       *metrics.Metrics
}

// NewWebhookController creates the controller. When applicationID is set, notifications
// for other marketplace applications are ignored.
func NewWebhookController(batch BatchQueue, accounts repository.AccountRepository, applicationID string, m *metrics.Metrics) *WebhookController {
	return &WebhookController{
		batch:         batch,
		accounts:      accounts,
		validate:      validator.New(),
		applicationID: applicationID,
		metrics:       m,
	}
}

func (wc *WebhookController) HandleMercadoLivreWebhook(c *fiber.Ctx) error {
	var event webhooks.WebhookEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		log.Warnf("[Webhook] Invalid payload from %s: %v", ClientIP(c), err)
		wc.metrics.RecordWebhookReceived("unknown", "invalid")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if err := wc.validate.Struct(event); err != nil {
		wc.metrics.RecordWebhookReceived(event.Topic, "invalid")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	if event.Topic != webhooks.TopicQuestions {
		wc.metrics.RecordWebhookReceived(event.Topic, "ignored")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}
	if wc.applicationID != "" && event.ApplicationID != "" && event.ApplicationID.String() != wc.applicationID {
		log.Warnf("[Webhook] Ignoring notification for application %s", event.ApplicationID)
		wc.metrics.RecordWebhookReceived(event.Topic, "ignored")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}
	if _, err := webhooks.QuestionIDFromResource(event.Resource); err != nil {
		wc.metrics.RecordWebhookReceived(event.Topic, "invalid")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_resource"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	account, err := wc.accounts.GetByMLUserID(ctx, event.UserID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Debugf("[Webhook] No active account for seller %s, ignoring %s", event.UserID, event.Resource)
			wc.metrics.RecordWebhookReceived(event.Topic, "unknown_account")
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		log.Errorf("[Webhook] Account lookup for seller %s failed: %v", event.UserID, err)
		wc.metrics.RecordWebhookReceived(event.Topic, "error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "account_lookup_failed"})
	}

	wc.batch.AddToBatch(account.ID, event)
	wc.metrics.RecordWebhookReceived(event.Topic, "queued")
	log.Infof("[Webhook] Queued %s for account %s", event.Resource, account.ID)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "queued": true})
}
