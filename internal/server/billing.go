package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
)

type checkoutRequest struct {
	UserID     int64  `json:"user_id"`
	Plan       string `json:"plan"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (s *Server) CreateCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.SuccessURL == "" {
		req.SuccessURL = s.cfg.BaseURL + "/billing/success"
	}
	if req.CancelURL == "" {
		req.CancelURL = s.cfg.BaseURL + "/billing/cancel"
	}

	user, err := s.userSvc.GetByID(c.Request.Context(), req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	session, err := s.subscriptionSvc.InitiateCheckout(c.Request.Context(), subscriptiondomain.InitiateCheckoutRequest{
		UserID:         int64(user.ID),
		Plan:           req.Plan,
		TelegramUserID: user.TelegramUserID,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":  session.URL,
		"plan": session.Plan,
	})
}

type inviteLinkRequest struct {
	UserID int64 `json:"user_id"`
}

// CreateInviteLink mints a fresh single-use invite for an entitled user.
func (s *Server) CreateInviteLink(c *gin.Context) {
	var req inviteLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entitled, err := s.subscriptionSvc.HasActiveSubscription(c.Request.Context(), req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !entitled {
		AbortWithError(c, accessdomain.ErrNoEntitlement)
		return
	}

	inviteLink, err := s.accessSvc.Grant(c.Request.Context(), req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invite_link": inviteLink})
}

func (s *Server) SubscriptionStatus(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	status, err := s.subscriptionSvc.Status(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !status.Exists {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exists":               true,
		"plan":                 status.Plan,
		"status":               status.Status,
		"current_period_end":   status.CurrentPeriodEnd,
		"cancel_at_period_end": status.CancelAtPeriodEnd,
	})
}
