package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerStash/internal/app/service"
	"github.com/sifan077/PowerStash/internal/http/middleware"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Records RecordDeps
	Stats   *service.StatsService
	APIKey  string
}

// APIHandler implements the read-only management API.
type APIHandler struct {
	logger  *zap.Logger
	records *recordLookup
	stats   *service.StatsService
	apiKey  string
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	lookup := newRecordLookup(deps.Records)
	return &APIHandler{
		logger:  lookup.logger,
		records: lookup,
		stats:   deps.Stats,
		apiKey:  deps.APIKey,
	}
}

// Register wires API routes onto the provided router. Without a key the API
// stays unmounted.
func (h *APIHandler) Register(router fiber.Router) {
	if h.apiKey == "" {
		h.logger.Info("api key not configured, management API disabled")
		return
	}
	api := router.Group("/api", middleware.APIKey(h.apiKey))
	{
		api.Get("/stats", h.GetStats)
		api.Get("/records/:token", h.GetRecord)
	}
}

// GetStats handles GET /api/stats
func (h *APIHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.stats.Collect(userContext(c))
	if err != nil {
		h.logger.Error("failed to collect stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to collect stats",
		})
	}
	return c.JSON(stats)
}

// GetRecord handles GET /api/records/:token
func (h *APIHandler) GetRecord(c *fiber.Ctx) error {
	record, loadErr := h.records.load(userContext(c), c.Params("token"))
	if loadErr != nil {
		return c.Status(loadErr.StatusCode).JSON(fiber.Map{
			"error": loadErr.Message,
		})
	}
	return c.JSON(record)
}
