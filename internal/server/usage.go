package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetUsage(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	overview, err := s.guard.Overview(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": overview})
}
