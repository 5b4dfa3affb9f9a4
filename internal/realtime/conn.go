package realtime

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Close codes used by the dispatcher.
const (
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseNormal          = websocket.CloseNormalClosure
)

// Conn is the transport under a stream session. ReadMessage is called from one
// goroutine and WriteFrame from another; Ping and Close may race with both.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteFrame(f Frame) error
	Ping() error
	Close(code int, reason string) error
}

// NewUpgrader accepts browser connections from the allowed origins and from
// the server's own host. Requests without an Origin header are not browser
// initiated and pass.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSuffix(o, "/")] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed[origin] {
				return true
			}
			return sameHost(origin, r.Host)
		},
	}
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host != "" && strings.EqualFold(u.Host, host)
}

type wsConn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
}

// NewConn wraps an upgraded gorilla connection with deadlines and keep-alive handling.
func NewConn(ws *websocket.Conn) Conn {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			return msg, nil
		}
	}
}

func (c *wsConn) WriteFrame(f Frame) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(f)
}

func (c *wsConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}
