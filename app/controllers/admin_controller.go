package controllers

import (
	"github.com/ManuelReschke/MeliDesk/app/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// AdminController exposes the batch processor state to operators.
type AdminController struct {
	batch     BatchQueue
	questions repository.QuestionRepository
}

func NewAdminController(batch BatchQueue, questions repository.QuestionRepository) *AdminController {
	return &AdminController{batch: batch, questions: questions}
}

// HandleWebhookStatus returns the batch snapshot and question counts per status.
// ?organization_id= narrows the counts to one organization.
func (ac *AdminController) HandleWebhookStatus(c *fiber.Ctx) error {
	counts, err := ac.questions.CountByStatus(c.UserContext(), c.Query("organization_id"))
	if err != nil {
		return ac.handleError(c, "Failed to count questions", err)
	}

	return c.JSON(fiber.Map{
		"batch":     ac.batch.GetStatus(),
		"questions": counts,
	})
}

// HandleWebhookFlush starts the processing loop if it is idle.
func (ac *AdminController) HandleWebhookFlush(c *fiber.Ctx) error {
	started := ac.batch.Flush()
	log.Infof("[Admin] Webhook flush requested by %s (started=%t)", ClientIP(c), started)

	return c.JSON(fiber.Map{
		"ok":      true,
		"started": started,
		"batch":   ac.batch.GetStatus(),
	})
}

func (ac *AdminController) handleError(c *fiber.Ctx, message string, err error) error {
	log.Errorf("[Admin] %s: %v", message, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": message})
}
