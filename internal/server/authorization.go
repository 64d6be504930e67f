package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seometer/internal/authorization"
	"github.com/smallbiznis/seometer/internal/usercontext"
)

// authorizeAction gates admin routes on the caller's role claim.
func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromRequest(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}

		role := usercontext.RoleFromContext(c.Request.Context())
		if err := s.authzSvc.Authorize(c.Request.Context(), authorization.UserActor(userID), role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
