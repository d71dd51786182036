package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	disputedomain "github.com/smallbiznis/recurra/internal/payment/dispute/domain"
)

type openDisputeRequest struct {
	SubscriptionID uint64 `json:"subscription_id" binding:"required"`
	Reason         string `json:"reason"`
}

type evidenceRequest struct {
	Evidence string `json:"evidence"`
}

func (s *Server) OpenDispute(c *gin.Context) {
	var req openDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dispute, err := s.disputeSvc.OpenDispute(c.Request.Context(), callerFrom(c), req.SubscriptionID, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": dispute})
}

func (s *Server) SubmitEvidence(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req evidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dispute, err := s.disputeSvc.SubmitEvidence(c.Request.Context(), callerFrom(c), id, req.Evidence)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": dispute})
}

func (s *Server) ResolveDispute(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req disputedomain.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dispute, err := s.disputeSvc.ResolveDispute(c.Request.Context(), callerFrom(c), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": dispute})
}

func (s *Server) CancelDispute(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	dispute, err := s.disputeSvc.CancelDispute(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": dispute})
}

func (s *Server) IsEligibleForAutoResolution(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	eligible, err := s.disputeSvc.IsEligibleForAutoResolution(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"dispute_id": id, "eligible": eligible}})
}

func (s *Server) AutoResolveDispute(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	dispute, err := s.disputeSvc.AutoResolveDispute(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": dispute})
}

func (s *Server) GetDispute(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	dispute, err := s.disputeSvc.GetDispute(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": dispute})
}

func (s *Server) ListSubscriptionDisputes(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	disputes, err := s.disputeSvc.ListSubscriptionDisputes(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": disputes})
}

func (s *Server) ListAutoResolvable(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	disputes, err := s.disputeSvc.ListAutoResolvable(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": disputes})
}
