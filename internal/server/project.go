package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seometer/internal/plan"
	projectdomain "github.com/smallbiznis/seometer/internal/project/domain"
)

func (s *Server) ListProjects(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.projectSvc.List(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateProject(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.Set(usageCategoryKey, string(plan.CategoryProjects))

	var req projectdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = userID

	resp, err := s.projectSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) DeleteProject(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.projectSvc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) AddProjectKeywords(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.Set(usageCategoryKey, string(plan.CategoryTrackedKeywords))

	var req projectdomain.AddKeywordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = userID
	req.ProjectID = c.Param("id")

	resp, err := s.projectSvc.AddKeywords(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
