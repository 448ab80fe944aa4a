package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pwanimeetup/referral/internal/service"
)

// RedemptionHandler serves the public redemption surface.
type RedemptionHandler struct {
	redemption *service.RedemptionService
	analytics  *service.AnalyticsService
	log        *logrus.Logger
}

// NewRedemptionHandler constructs a RedemptionHandler.
func NewRedemptionHandler(redemption *service.RedemptionService, analytics *service.AnalyticsService, log *logrus.Logger) *RedemptionHandler {
	return &RedemptionHandler{redemption: redemption, analytics: analytics, log: log}
}

type redeemRequest struct {
	Email string `form:"email" json:"email"`
}

// Redeem handles a redemption submission. Rejections carry a specific
// message; storage failures surface generically.
func (h *RedemptionHandler) Redeem(c *gin.Context) {
	var body redeemRequest
	if err := c.ShouldBind(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid email address."})
		return
	}

	redemption, err := h.redemption.Redeem(c.Request.Context(), body.Email)
	if err != nil {
		status, message := redeemRejection(err)
		if !service.IsRejection(err) {
			h.log.WithError(err).Error("Redemption failed")
		}
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, redemption)
}

func redeemRejection(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, "Please enter a valid email address."
	case errors.Is(err, service.ErrNotEligible):
		return http.StatusForbidden, "This email is not eligible for a code."
	case errors.Is(err, service.ErrAlreadyClaimed):
		return http.StatusConflict, "You have already redeemed a code."
	case errors.Is(err, service.ErrExhausted):
		return http.StatusGone, "No codes available at the moment."
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

// Counts returns the public availability counter.
func (h *RedemptionHandler) Counts(c *gin.Context) {
	counts, err := h.analytics.CodeCounts(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Counts lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again."})
		return
	}

	c.JSON(http.StatusOK, counts)
}
