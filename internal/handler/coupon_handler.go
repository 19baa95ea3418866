package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/service"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/response"
)

// CouponHandler exposes discount code endpoints.
type CouponHandler struct {
	coupons *service.CouponService
}

// NewCouponHandler constructs CouponHandler.
func NewCouponHandler(coupons *service.CouponService) *CouponHandler {
	return &CouponHandler{coupons: coupons}
}

// Create godoc
// @Summary Create a coupon
// @Tags Coupons
// @Accept json
// @Produce json
// @Param payload body service.CreateCouponRequest true "Coupon payload"
// @Success 201 {object} response.Envelope
// @Router /coupons [post]
func (h *CouponHandler) Create(c *gin.Context) {
	var req service.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	coupon, err := h.coupons.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, coupon)
}

// List godoc
// @Summary List coupons
// @Tags Coupons
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /coupons [get]
func (h *CouponHandler) List(c *gin.Context) {
	coupons, err := h.coupons.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coupons, nil)
}

// Validate godoc
// @Summary Check whether a coupon code is redeemable
// @Tags Coupons
// @Produce json
// @Param code path string true "Coupon code"
// @Success 200 {object} response.Envelope
// @Router /coupons/{code}/validate [get]
func (h *CouponHandler) Validate(c *gin.Context) {
	coupon, err := h.coupons.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coupon, nil)
}

// Deactivate godoc
// @Summary Deactivate a coupon
// @Tags Coupons
// @Produce json
// @Param code path string true "Coupon code"
// @Success 204
// @Router /coupons/{code} [delete]
func (h *CouponHandler) Deactivate(c *gin.Context) {
	if err := h.coupons.Deactivate(c.Request.Context(), c.Param("code")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
