package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
)

type registerRequest struct {
	TelegramUserID *int64 `json:"telegram_user_id"`
}

func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user, err := s.userSvc.Register(c.Request.Context(), userdomain.RegisterRequest{
		TelegramUserID: req.TelegramUserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":          user.ID,
		"telegram_user_id": user.TelegramUserID,
	})
}

type requestLinkCodeRequest struct {
	UserID int64 `json:"user_id"`
}

func (s *Server) RequestLinkCode(c *gin.Context) {
	var req requestLinkCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	instruction, err := s.userSvc.RequestLinkCode(c.Request.Context(), req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"already_linked":   instruction.AlreadyLinked,
		"telegram_user_id": instruction.TelegramUserID,
		"message":          instruction.Message,
	})
}

type confirmLinkCodeRequest struct {
	UserID int64  `json:"user_id"`
	Code   string `json:"code"`
}

func (s *Server) ConfirmLinkCode(c *gin.Context) {
	var req confirmLinkCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user, err := s.userSvc.ConfirmLinkCode(c.Request.Context(), req.UserID, req.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":          user.ID,
		"telegram_user_id": user.TelegramUserID,
	})
}
