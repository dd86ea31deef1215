package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/noah-isme/geo-attendance-api/internal/middleware"
	"github.com/noah-isme/geo-attendance-api/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS layer; the upgrade itself
	// is authenticated via the JWT middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades an authenticated student connection and attaches it to
// the hub.
func Handler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not available"})
			return
		}
		claims := middleware.CurrentUser(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if claims.Role != models.RoleStudent {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only students subscribe to attendance notifications"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newClient(hub, conn, claims.UserID)
		hub.register(client)

		go client.writePump()
		client.readPump()
	}
}
