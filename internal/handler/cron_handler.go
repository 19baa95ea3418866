package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/service"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/response"
)

// CronHandler exposes the endpoints hit by the external scheduler. The
// routes sit behind the cron shared-secret middleware.
type CronHandler struct {
	credits   *service.CreditService
	reminders *service.ReminderService
	metrics   *service.MetricsService
}

// NewCronHandler constructs CronHandler.
func NewCronHandler(credits *service.CreditService, reminders *service.ReminderService, metrics *service.MetricsService) *CronHandler {
	return &CronHandler{credits: credits, reminders: reminders, metrics: metrics}
}

// ExpireCredits godoc
// @Summary Run the credit expiration sweep
// @Tags Cron
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /cron/expire-credits [post]
func (h *CronHandler) ExpireCredits(c *gin.Context) {
	expired, err := h.credits.ExpireCredits(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil && expired > 0 {
		h.metrics.RecordCreditsExpired(expired)
	}
	response.JSON(c, http.StatusOK, gin.H{"credits_expired": expired}, nil)
}

// Reminders godoc
// @Summary Run the class reminder sweep
// @Tags Cron
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /cron/reminders [post]
func (h *CronHandler) Reminders(c *gin.Context) {
	result, err := h.reminders.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
