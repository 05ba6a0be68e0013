package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chatwire/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The original frontends connect from arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler wires HTTP routes to the websocket hub.
type Handler struct {
	log       *logrus.Logger
	hub       *ws.Hub
	staticDir string
}

func NewHandler(log *logrus.Logger, hub *ws.Hub, staticDir string) *Handler {
	return &Handler{
		log:       log,
		hub:       hub,
		staticDir: staticDir,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	router.GET("/", h.rootPage)
	router.Static("/static", h.staticDir)
	router.GET("/ws", h.serveWebsocket)

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) rootPage(c *gin.Context) {
	c.String(http.StatusOK, "WebSocket Server is Running!")
}

func (h *Handler) serveWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade from %s: %v", c.Request.RemoteAddr, err)
		return
	}

	client := ws.NewClient(conn, h.hub)
	h.hub.Register(client)
}
