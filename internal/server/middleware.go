package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAccount    = "X-Account-ID"
	contextCallerKey = "caller"
)

// Caller copies the account id asserted by the wallet gateway into the
// request context. Services reject an empty caller where one is required.
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextCallerKey, strings.TrimSpace(c.GetHeader(HeaderAccount)))
		c.Next()
	}
}

func callerFrom(c *gin.Context) string {
	return c.GetString(contextCallerKey)
}
