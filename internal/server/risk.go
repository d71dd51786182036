package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type updatePredictionRequest struct {
	Likelihood *int   `json:"likelihood" binding:"required"`
	Factors    string `json:"factors"`
}

func (s *Server) GetCreditScore(c *gin.Context) {
	score, err := s.creditSvc.GetScore(c.Request.Context(), strings.TrimSpace(c.Param("account")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": score})
}

func (s *Server) GetPrediction(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	prediction, err := s.riskSvc.GetPrediction(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": prediction})
}

func (s *Server) CalculateLikelihood(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	prediction, err := s.riskSvc.CalculateLikelihood(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": prediction})
}

func (s *Server) UpdatePrediction(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updatePredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prediction, err := s.riskSvc.UpdatePrediction(c.Request.Context(), callerFrom(c), id, *req.Likelihood, req.Factors)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": prediction})
}

func (s *Server) GetHighRiskSubscriptions(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	predictions, err := s.riskSvc.GetHighRiskSubscriptions(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": predictions})
}
