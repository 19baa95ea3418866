package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/service"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/response"
)

// CreditHandler exposes credit ledger endpoints.
type CreditHandler struct {
	credits *service.CreditService
}

// NewCreditHandler constructs CreditHandler.
func NewCreditHandler(credits *service.CreditService) *CreditHandler {
	return &CreditHandler{credits: credits}
}

// Summary godoc
// @Summary Student credit summary
// @Tags Credits
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits [get]
func (h *CreditHandler) Summary(c *gin.Context) {
	summary, err := h.credits.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Batches godoc
// @Summary Student credit batches
// @Tags Credits
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits/batches [get]
func (h *CreditHandler) Batches(c *gin.Context) {
	batches, err := h.credits.Batches(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, nil)
}

// Transactions godoc
// @Summary Student credit ledger
// @Tags Credits
// @Produce json
// @Param id path string true "Student ID"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits/transactions [get]
func (h *CreditHandler) Transactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	txs, err := h.credits.Transactions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txs, nil)
}

// Grant godoc
// @Summary Grant a purchased credit batch
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body service.CreateCreditBalanceRequest true "Grant payload"
// @Success 201 {object} response.Envelope
// @Router /credits [post]
func (h *CreditHandler) Grant(c *gin.Context) {
	var req service.CreateCreditBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	batch, err := h.credits.CreateCreditBalance(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// Adjust godoc
// @Summary Manually adjust a student's credits
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body service.AdjustCreditsRequest true "Adjustment payload"
// @Success 204
// @Router /credits/adjust [post]
func (h *CreditHandler) Adjust(c *gin.Context) {
	var req service.AdjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.credits.AdjustCredits(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Statement godoc
// @Summary Download a student's credit statement
// @Tags Credits
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /students/{id}/credits/statement [get]
func (h *CreditHandler) Statement(c *gin.Context) {
	format := service.StatementFormat(c.DefaultQuery("format", "csv"))
	payload, contentType, err := h.credits.Statement(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	ext := "csv"
	if format == service.StatementPDF {
		ext = "pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="credit-statement.%s"`, ext))
	c.Data(http.StatusOK, contentType, payload)
}
