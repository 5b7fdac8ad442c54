package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerStash/internal/http/view"
	"go.uber.org/zap"
)

const landingCountdown = 3

// LandingHandler serves the web page behind shared links. It shows what the
// link holds and hands the visitor over to the bot.
type LandingHandler struct {
	logger  *zap.Logger
	records *recordLookup
}

func NewLandingHandler(deps RecordDeps) *LandingHandler {
	lookup := newRecordLookup(deps)
	return &LandingHandler{logger: lookup.logger, records: lookup}
}

// Register wires landing routes onto the provided router.
func (h *LandingHandler) Register(router fiber.Router) {
	router.Get("/s/:token", h.Show)
}

// Show handles GET /s/:token.
func (h *LandingHandler) Show(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link token",
		})
	}

	record, loadErr := h.records.load(userContext(c), token)
	if loadErr != nil {
		return c.Status(loadErr.StatusCode).JSON(fiber.Map{
			"error": loadErr.Message,
		})
	}

	page, err := view.RenderLandingPage(view.LandingPageData{
		Name:      record.Name,
		Kind:      string(record.Kind),
		Type:      record.Type,
		Size:      record.Size,
		FileCount: record.FileCount,
		ExpiresAt: record.ExpiresAt,
		DeepLink:  record.DeepLink,
		Seconds:   landingCountdown,
	})
	if err != nil {
		h.logger.Error("failed to render landing page", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to render page",
		})
	}

	return c.
		Type("html", "utf-8").
		SendString(page)
}
