package websocket

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/zfogg/sparkfeed/internal/auth"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"github.com/zfogg/sparkfeed/internal/util"
	"go.uber.org/zap"
)

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub            *Hub
	auth           auth.AuthServiceInterface
	originPatterns []string
}

// NewHandler creates a new WebSocket handler. originPatterns lists the
// browser origins allowed to connect besides the API's own host.
func NewHandler(hub *Hub, authService auth.AuthServiceInterface, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		auth:           authService,
		originPatterns: originPatterns,
	}
}

// HandleWebSocket upgrades GET /api/v1/realtime. The token comes from the
// Authorization header or ?token=. The subscription is chosen with
// ?collection=posts plus optional ?user_id= and repeated ?kind=.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := auth.TokenFromRequest(c)
	if token == "" {
		util.RespondWithAPIError(c, errors.AuthRequired("no authentication token provided"))
		return
	}
	profile, err := h.auth.ValidateToken(c.Request.Context(), token)
	if err != nil {
		util.RespondError(c, "validate token", err)
		return
	}

	collection := c.DefaultQuery("collection", realtime.CollectionPosts)
	if collection != realtime.CollectionPosts {
		util.RespondValidationError(c, "collection", "unknown collection")
		return
	}
	filter := realtime.Filter{UserID: c.Query("user_id")}
	for _, k := range util.QueryList(c, "kind") {
		kind := models.PostKind(k)
		if !kind.Valid() {
			util.RespondValidationError(c, "kind", "unknown post kind")
			return
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", logger.WithUserID(profile.ID), zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, profile.ID, collection, filter)
	client.RemoteAddr = c.ClientIP()
	h.hub.Register(client)

	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event: "connected",
		Data: map[string]interface{}{
			"user_id":     profile.ID,
			"collection":  collection,
			"server_time": time.Now().UTC().UnixMilli(),
		},
	}))

	go client.WritePump()
	client.ReadPump() // blocks until the client disconnects
}

// HandleMetrics returns WebSocket metrics for monitoring
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":   h.hub.GetMetrics(),
		"subscribers": h.hub.SubscriberCount(realtime.CollectionPosts),
		"timestamp":   time.Now().UTC(),
	})
}
