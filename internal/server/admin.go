package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/seometer/internal/subscription/domain"
	"go.uber.org/zap"
)

type upsertSubscriptionRequest struct {
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
}

func (s *Server) AdminGetUsage(c *gin.Context) {
	overview, err := s.guard.Overview(c.Request.Context(), strings.TrimSpace(c.Param("userId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": overview})
}

func (s *Server) AdminResetUsage(c *gin.Context) {
	target := strings.TrimSpace(c.Param("userId"))
	if err := s.ledger.ResetCurrentMonth(c.Request.Context(), target); err != nil {
		AbortWithError(c, err)
		return
	}

	actor, _ := userIDFromRequest(c)
	s.log.Info("usage reset by admin",
		zap.String("actor_id", actor),
		zap.String("target_user_id", target),
	)
	c.Status(http.StatusNoContent)
}

func (s *Server) AdminGetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetByUserID(c.Request.Context(), strings.TrimSpace(c.Param("userId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) AdminUpsertSubscription(c *gin.Context) {
	var req upsertSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sub, err := s.subscriptionSvc.Upsert(c.Request.Context(), subscriptiondomain.UpsertRequest{
		UserID: strings.TrimSpace(c.Param("userId")),
		PlanID: strings.TrimSpace(req.PlanID),
		Status: strings.TrimSpace(req.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) AdminListVendorCalls(c *gin.Context) {
	if s.vendorCalls == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var query struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	calls, err := s.vendorCalls.Recent(c.Request.Context(), strings.TrimSpace(c.Param("userId")), query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": calls})
}
