package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	"github.com/smallbiznis/recurra/pkg/db/pagination"
)

type processDueRequest struct {
	SubscriptionIDs []uint64 `json:"subscription_ids" binding:"required,min=1,max=500"`
}

// ProcessDuePayments is open to any caller; ineligible ids are skipped.
func (s *Server) ProcessDuePayments(c *gin.Context) {
	var req processDueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	results, err := s.paymentSvc.ProcessDuePayments(c.Request.Context(), req.SubscriptionIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": results})
}

func (s *Server) RecordExternalPayment(c *gin.Context) {
	var req paymentdomain.ExternalPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.paymentSvc.RecordExternalPayment(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": record})
}

func (s *Server) GetPaymentHistory(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	records, err := s.paymentSvc.GetPaymentHistory(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) GetAccountPaymentHistory(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	records, info, err := s.paymentSvc.ListAccountPayments(c.Request.Context(), strings.TrimSpace(c.Param("account")), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records, "page_info": info})
}
