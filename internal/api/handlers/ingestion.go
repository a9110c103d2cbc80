package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/irfndi/cryptopulse/internal/services"
)

// IngestionController exposes the ingestion service to the API.
type IngestionController interface {
	IngestionRunner
	Status() services.IngestionStatus
}

type IngestionHandler struct {
	service IngestionController
	params  services.IngestionParams
	logger  logrus.FieldLogger
}

func NewIngestionHandler(service IngestionController, params services.IngestionParams, logger logrus.FieldLogger) *IngestionHandler {
	return &IngestionHandler{service: service, params: params, logger: logger}
}

// GetStatus handles GET /api/ingestion/status.
func (h *IngestionHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// TriggerRun handles POST /api/ingestion/run. The run is detached from the
// request so a disconnecting client does not abort it mid-batch.
func (h *IngestionHandler) TriggerRun(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	result := h.service.RunIngestion(ctx, h.params)

	h.logger.WithFields(logrus.Fields{
		"run_id":  result.RunID,
		"success": result.Success,
		"skipped": result.Skipped,
		"user":    c.GetString("user_id"),
	}).Info("On-demand ingestion finished")

	c.JSON(statusFor(result), result)
}

func statusFor(result models.IngestionResult) int {
	switch {
	case result.Skipped:
		return http.StatusAccepted
	case result.Success:
		return http.StatusOK
	case result.Error != nil && result.Error.Kind == models.ErrorKindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
