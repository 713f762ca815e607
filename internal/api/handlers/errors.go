package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeloop/internal/middleware"
)

// internalError reports err to Sentry and hides it from the client.
func internalError(c *gin.Context, err error, message string) {
	middleware.RecordError(c, err, message)
	c.JSON(http.StatusInternalServerError, gin.H{
		"status": "error",
		"error":  message,
	})
}
