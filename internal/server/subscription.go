package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	"github.com/smallbiznis/subscriptiond/pkg/validation"
)

type CancelSubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

type UpgradeSubscriptionRequest struct {
	NewPlanID string `json:"new_plan_id"`
}

// GetCurrentSubscription answers {subscription: null} when the caller has
// nothing live. Absence is not an error.
func (s *Server) GetCurrentSubscription(c *gin.Context) {
	identity, found := identityFromContext(c)
	if !found {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	sub, err := s.subSvc.GetCurrent(c.Request.Context(), identity.UserID, identity.Role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"subscription": sub}, "")
}

func (s *Server) Subscribe(c *gin.Context) {
	identity, found := identityFromContext(c)
	if !found {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	planRef := strings.TrimSpace(c.Param("planId"))
	if planRef == "" {
		AbortWithError(c, validation.New("plan_id", "required", "plan_id is required"))
		return
	}

	sub, err := s.subSvc.Subscribe(c.Request.Context(), identity.UserID, planRef)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, sub, "subscribed")
}

func (s *Server) CancelSubscription(c *gin.Context) {
	identity, found := identityFromContext(c)
	if !found {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	// The body is optional.
	var req CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	var subscriptionID snowflake.ID
	if raw := strings.TrimSpace(req.SubscriptionID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil || parsed == 0 {
			AbortWithError(c, subscriptiondomain.ErrInvalidID)
			return
		}
		subscriptionID = parsed
	}

	sub, err := s.subSvc.Cancel(c.Request.Context(), subscriptiondomain.CancelRequest{
		SubscriptionID: subscriptionID,
		RequesterID:    identity.UserID,
		RequesterRole:  identity.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, sub, "subscription cancelled")
}

func (s *Server) UpgradeSubscription(c *gin.Context) {
	identity, found := identityFromContext(c)
	if !found {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req UpgradeSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	newPlanID := strings.TrimSpace(req.NewPlanID)
	if newPlanID == "" {
		AbortWithError(c, validation.New("new_plan_id", "required", "new_plan_id is required"))
		return
	}

	sub, err := s.subSvc.Upgrade(c.Request.Context(), identity.UserID, newPlanID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, sub, "subscription upgraded")
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query subscriptiondomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, "")
}

func (s *Server) PremiumContent(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"content": "premium content unlocked"}, "")
}
