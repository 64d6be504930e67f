package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seometer/internal/plan"
	researchdomain "github.com/smallbiznis/seometer/internal/research/domain"
)

func (s *Server) KeywordIdeas(c *gin.Context) {
	var req researchdomain.KeywordIdeasRequest
	if !s.bindResearch(c, plan.CategoryKeywordSearches, &req, &req.UserID) {
		return
	}

	resp, err := s.researchSvc.KeywordIdeas(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AnalyzeBacklinks(c *gin.Context) {
	var req researchdomain.BacklinksRequest
	if !s.bindResearch(c, plan.CategoryBacklinkAnalyses, &req, &req.UserID) {
		return
	}

	resp, err := s.researchSvc.AnalyzeBacklinks(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) StartSiteAudit(c *gin.Context) {
	var req researchdomain.SiteAuditRequest
	if !s.bindResearch(c, plan.CategoryAuditPages, &req, &req.UserID) {
		return
	}

	resp, err := s.researchSvc.StartSiteAudit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": resp})
}

func (s *Server) GetAuditSummary(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.Set(usageCategoryKey, string(plan.CategoryAuditPages))

	resp, err := s.researchSvc.AuditSummary(c.Request.Context(), userID, c.Param("taskId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SerpHistory(c *gin.Context) {
	var req researchdomain.SerpHistoryRequest
	if !s.bindResearch(c, plan.CategorySerpHistory, &req, &req.UserID) {
		return
	}

	resp, err := s.researchSvc.SerpHistory(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DomainOverview(c *gin.Context) {
	var req researchdomain.DomainOverviewRequest
	if !s.bindResearch(c, plan.CategoryDomainAnalyses, &req, &req.UserID) {
		return
	}

	resp, err := s.researchSvc.DomainOverview(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AIVisibility(c *gin.Context) {
	var req researchdomain.AIVisibilityRequest
	if !s.bindResearch(c, plan.CategoryAIVisibility, &req, &req.UserID) {
		return
	}

	resp, err := s.researchSvc.AIVisibility(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ExportKeywords(c *gin.Context) {
	var req researchdomain.ExportRequest
	if !s.bindResearch(c, plan.CategoryExports, &req, &req.UserID) {
		return
	}

	// Buffered so a failed export still gets a JSON error body.
	var buf bytes.Buffer
	if err := s.researchSvc.ExportKeywords(c.Request.Context(), req, &buf); err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("keywords-%s.csv", c.GetString("request_id"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// bindResearch decodes the JSON body into req and stamps the authenticated user.
func (s *Server) bindResearch(c *gin.Context, category plan.Category, req any, userID *string) bool {
	id, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return false
	}
	c.Set(usageCategoryKey, string(category))

	if err := c.ShouldBindJSON(req); err != nil {
		AbortWithError(c, invalidRequestError())
		return false
	}
	*userID = id
	return true
}
