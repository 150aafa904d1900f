package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	obscontext "github.com/smallbiznis/subscriptiond/internal/observability/context"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
)

const contextIdentityKey = "identity"

// AuthRequired accepts "Authorization: Bearer <access token>" only.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, authdomain.ErrUnauthenticated)
			return
		}

		identity, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), string(identity.Role), identity.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextIdentityKey, *identity)
		c.Next()
	}
}

// RequirePermission checks the caller's role against the RBAC policy.
func (s *Server) RequirePermission(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), identity.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// RequireSubscription gates premium routes on a live subscription. Admins
// always pass.
func (s *Server) RequireSubscription() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		allowed, err := s.subSvc.HasAccess(c.Request.Context(), identity.UserID, identity.Role)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !allowed {
			AbortWithError(c, subscriptiondomain.ErrSubscriptionRequired)
			return
		}
		c.Next()
	}
}

func identityFromContext(c *gin.Context) (authdomain.Identity, bool) {
	raw, ok := c.Get(contextIdentityKey)
	if !ok {
		return authdomain.Identity{}, false
	}
	identity, ok := raw.(authdomain.Identity)
	if !ok || identity.UserID == 0 {
		return authdomain.Identity{}, false
	}
	return identity, true
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
