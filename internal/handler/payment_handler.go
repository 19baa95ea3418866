package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/service"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/response"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/storage"
)

// PaymentHandler exposes payment-proof endpoints.
type PaymentHandler struct {
	payments    *service.PaymentService
	files       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	maxFileSize int64
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, files *storage.LocalStorage, signer *storage.SignedURLSigner, maxFileSize int64) *PaymentHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 * 1024 * 1024
	}
	return &PaymentHandler{payments: payments, files: files, signer: signer, maxFileSize: maxFileSize}
}

// Upload godoc
// @Summary Upload a payment proof
// @Tags Payments
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Receipt file"
// @Param student_id formData string true "Student ID"
// @Param amount formData number true "Transfer amount"
// @Param classes formData int true "Classes purchased"
// @Param coupon_code formData string false "Coupon code"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "receipt file is required"))
		return
	}
	if fileHeader.Size > h.maxFileSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "receipt file too large"))
		return
	}

	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "amount must be a number"))
		return
	}
	classes, err := strconv.Atoi(c.PostForm("classes"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "classes must be an integer"))
		return
	}

	req := service.UploadProofRequest{
		StudentID: studentScope(c, c.PostForm("student_id")),
		Amount:    amount,
		Classes:   classes,
		Filename:  fileHeader.Filename,
	}
	if code := c.PostForm("coupon_code"); code != "" {
		req.CouponCode = &code
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	proof, err := h.payments.Upload(c.Request.Context(), req, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proof)
}

// List godoc
// @Summary List payment proofs
// @Tags Payments
// @Produce json
// @Param student query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	var filter models.PaymentProofFilter
	filter.StudentID = studentScope(c, c.Query("student"))
	filter.Status = models.PaymentProofStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	proofs, pagination, err := h.payments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proofs, pagination)
}

// Get godoc
// @Summary Get a payment proof
// @Tags Payments
// @Produce json
// @Param id path string true "Proof ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	proof, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proof, nil)
}

// Review godoc
// @Summary Approve or reject a payment proof
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Proof ID"
// @Param payload body service.ReviewProofRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/review [post]
func (h *PaymentHandler) Review(c *gin.Context) {
	var req service.ReviewProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	proof, err := h.payments.Review(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proof, nil)
}

// DownloadURL godoc
// @Summary Issue a short-lived signed download link for a proof file
// @Tags Payments
// @Produce json
// @Param id path string true "Proof ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/download-url [get]
func (h *PaymentHandler) DownloadURL(c *gin.Context) {
	token, expiresAt, err := h.payments.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}, nil)
}

// Download godoc
// @Summary Serve a proof file for a valid signed token
// @Tags Payments
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /payments/download [get]
func (h *PaymentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	_, relPath, _, err := h.signer.Parse(token)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}
	file, err := h.files.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "proof file not found"))
		return
	}
	defer file.Close() //nolint:errcheck
	c.File(file.Name())
}
