package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recurra/internal/authorization"
)

type roleRequest struct {
	Account string `json:"account" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

type depositRequest struct {
	Account   string          `json:"account" binding:"required"`
	AssetType string          `json:"asset_type" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type approveRequest struct {
	Spender   string          `json:"spender" binding:"required"`
	AssetType string          `json:"asset_type" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

func (s *Server) GrantRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authzSvc.GrantRole(c.Request.Context(), callerFrom(c), req.Account, req.Role); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"account": req.Account, "role": req.Role, "granted": true}})
}

func (s *Server) RevokeRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authzSvc.RevokeRole(c.Request.Context(), callerFrom(c), req.Account, req.Role); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"account": req.Account, "role": req.Role, "granted": false}})
}

func (s *Server) ListRoles(c *gin.Context) {
	roles, err := s.authzSvc.ListRoles(c.Request.Context(), strings.TrimSpace(c.Param("account")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": roles})
}

// Deposit is the development faucet; admin only.
func (s *Server) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.assetSvc.Deposit(c.Request.Context(), callerFrom(c), req.Account, req.AssetType, req.Amount); err != nil {
		AbortWithError(c, err)
		return
	}

	s.balanceResponse(c, req.Account, req.AssetType)
}

// Approve sets the allowance the caller grants to spender.
func (s *Server) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	caller := callerFrom(c)
	if caller == "" {
		AbortWithError(c, authorization.ErrInvalidActor)
		return
	}
	ctx := c.Request.Context()
	if err := s.assetSvc.Approve(ctx, caller, req.Spender, req.AssetType, req.Amount); err != nil {
		AbortWithError(c, err)
		return
	}

	allowance, err := s.assetSvc.AllowanceOf(ctx, caller, req.Spender, req.AssetType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"owner":      caller,
		"spender":    req.Spender,
		"asset_type": req.AssetType,
		"amount":     allowance,
	}})
}

func (s *Server) GetBalance(c *gin.Context) {
	s.balanceResponse(c, strings.TrimSpace(c.Param("account")), strings.TrimSpace(c.Param("asset")))
}

func (s *Server) GetAllowance(c *gin.Context) {
	owner := strings.TrimSpace(c.Param("account"))
	spender := strings.TrimSpace(c.Param("spender"))
	assetType := strings.TrimSpace(c.Param("asset"))

	allowance, err := s.assetSvc.AllowanceOf(c.Request.Context(), owner, spender, assetType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"owner":      owner,
		"spender":    spender,
		"asset_type": assetType,
		"amount":     allowance,
	}})
}

func (s *Server) balanceResponse(c *gin.Context, account, assetType string) {
	balance, err := s.assetSvc.BalanceOf(c.Request.Context(), account, assetType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"account":    account,
		"asset_type": assetType,
		"amount":     balance,
	}})
}
