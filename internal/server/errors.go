package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	"github.com/smallbiznis/clubgate/internal/payment/stripe"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, stripe.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, accessdomain.ErrNoEntitlement):
		return http.StatusForbidden, errorPayload{
			Type:    "no_active_subscription",
			Message: "an active subscription is required",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, userdomain.ErrAlreadyLinked):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "telegram account already linked",
		}
	case isUpstreamError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "upstream service failure",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, userdomain.ErrInvalidID),
		errors.Is(err, userdomain.ErrCodeConsumed),
		errors.Is(err, userdomain.ErrCodeExpired),
		errors.Is(err, subscriptiondomain.ErrInvalidPlan),
		errors.Is(err, subscriptiondomain.ErrInvalidPriceID),
		errors.Is(err, subscriptiondomain.ErrInvalidUserID),
		errors.Is(err, subscriptiondomain.ErrInvalidArgument),
		errors.Is(err, accessdomain.ErrInvalidUserID),
		errors.Is(err, stripe.ErrInvalidPayload),
		errors.Is(err, stripe.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, userdomain.ErrCodeNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, accessdomain.ErrGrantNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUpstreamError(err error) bool {
	switch {
	case errors.Is(err, stripe.ErrAPIFailure),
		errors.Is(err, subscriptiondomain.ErrGatewayFailure),
		errors.Is(err, accessdomain.ErrGroupFailure):
		return true
	default:
		return false
	}
}
