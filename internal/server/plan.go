package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
)

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if plans == nil {
		plans = []plandomain.Plan{}
	}

	respond(c, http.StatusOK, plans, "")
}

// GetPlan accepts a plan id, a provider price id or a slug. Deactivated
// plans are not found.
func (s *Server) GetPlan(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("id"))
	if ref == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.Resolve(c.Request.Context(), ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, plan, "")
}

func (s *Server) AdminListPlans(c *gin.Context) {
	plans, err := s.planSvc.List(c.Request.Context(), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if plans == nil {
		plans = []plandomain.Plan{}
	}

	respond(c, http.StatusOK, plans, "")
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req plandomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, plan, "plan created")
}

func (s *Server) UpdatePlan(c *gin.Context) {
	var req plandomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, plan, "plan updated")
}

// DeactivatePlan soft-deletes; subscriptions keep their plan reference.
func (s *Server) DeactivatePlan(c *gin.Context) {
	plan, err := s.planSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, plan, "plan deactivated")
}
