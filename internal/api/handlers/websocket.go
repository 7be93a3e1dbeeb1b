package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/playrally/backend/internal/ws"
)

// HandleMatchWebSocket upgrades the connection and hands it to the match hub.
func HandleMatchWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws.HandleWebSocket(c)
	}
}
