package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/subscriptiond/pkg/validation"
)

type CreateCheckoutSessionRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	identity, found := identityFromContext(c)
	if !found {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req CreateCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	planID := strings.TrimSpace(req.PlanID)
	if planID == "" {
		AbortWithError(c, validation.New("plan_id", "required", "plan_id is required"))
		return
	}

	session, err := s.gateway.CreateSession(c.Request.Context(), identity.UserID, planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, session, "")
}

// GetCheckoutSession lets the payment-success page ask whether the
// provider considers the session paid. The subscription itself is only
// ever created by the webhook.
func (s *Server) GetCheckoutSession(c *gin.Context) {
	identity, found := identityFromContext(c)
	if !found {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.gateway.SessionStatus(c.Request.Context(), identity.UserID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, status, "")
}
