package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yungbote/workbench-backend/internal/http/middleware"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/realtime"
)

type StreamHandler struct {
	log        *logger.Logger
	dispatcher *realtime.Dispatcher
	upgrader   *websocket.Upgrader
}

func NewStreamHandler(log *logger.Logger, dispatcher *realtime.Dispatcher, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		log:        log.With("handler", "StreamHandler"),
		dispatcher: dispatcher,
		upgrader:   realtime.NewUpgrader(allowedOrigins),
	}
}

// GET /ws/stream
// The access cookie is verified by the dispatcher after the upgrade so that
// refusals reach the client as close frames.
func (h *StreamHandler) Stream(c *gin.Context) {
	token := middleware.AccessToken(c)
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.dispatcher.Serve(c.Request.Context(), realtime.NewConn(ws), token)
}
