package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/campusmate/tutor/internal/i18n"
	"github.com/campusmate/tutor/internal/middleware"
)

const (
	FrameConnected = "connected"
	FrameTyping    = "typing"
	FrameMessage   = "message"
	FrameError     = "error"

	writeWait = 10 * time.Second
)

// WSIncoming is a frame sent by the client.
type WSIncoming struct {
	Type string `json:"type"`
	ChatInput
	Prompt string `json:"prompt,omitempty"`
	Image  string `json:"image,omitempty"`
}

// WSFrame is a frame sent to the client.
type WSFrame struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"clientId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Typing    *bool     `json:"typing,omitempty"`
	Exchange  *Exchange `json:"exchange,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// WSHandler serves chat over a WebSocket. Sends are handled concurrently;
// each reply lands after its own question regardless of finishing order.
type WSHandler struct {
	conversation   *Conversation
	limiter        middleware.RateLimiter
	security       *middleware.SecurityMiddleware
	metrics        *middleware.Metrics
	localizer      *i18n.Localizer
	logger         *logrus.Logger
	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader
}

func NewWSHandler(
	conversation *Conversation,
	limiter middleware.RateLimiter,
	security *middleware.SecurityMiddleware,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
	allowedOrigins []string,
) *WSHandler {
	origins := make(map[string]bool)
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	h := &WSHandler{
		conversation:   conversation,
		limiter:        limiter,
		security:       security,
		metrics:        metrics,
		localizer:      localizer,
		logger:         logger,
		allowedOrigins: origins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 || h.allowedOrigins["*"] {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return h.allowedOrigins[origin]
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(frame WSFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.metrics.WebSocketOpened()
	defer h.metrics.WebSocketClosed()

	clientID := ClientID(r)
	log := h.logger.WithField("client_id", clientID)
	ws := &wsConn{conn: conn}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	store := h.conversation.Store(ctx, clientID)
	if err := ws.send(WSFrame{Type: FrameConnected, ClientID: clientID, SessionID: store.ActiveID()}); err != nil {
		log.WithError(err).Warn("Failed to send connected frame")
		return
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var in WSIncoming
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("WebSocket closed unexpectedly")
			}
			return
		}

		if !h.limiter.Allow(clientID) {
			h.metrics.RecordRateLimitExceeded(SurfaceWebSocket)
			_ = ws.send(WSFrame{Type: FrameError, Error: h.localizer.T(i18n.MsgRateLimitExceeded, nil)})
			continue
		}

		wg.Add(1)
		go func(in WSIncoming) {
			defer wg.Done()
			h.handle(ctx, ws, clientID, in, log)
		}(in)
	}
}

func (h *WSHandler) handle(ctx context.Context, ws *wsConn, clientID string, in WSIncoming, log *logrus.Entry) {
	on, off := true, false
	_ = ws.send(WSFrame{Type: FrameTyping, Typing: &on})
	defer func() { _ = ws.send(WSFrame{Type: FrameTyping, Typing: &off}) }()

	var (
		ex  *Exchange
		err error
	)
	if in.Type == "vision" {
		ex, err = h.conversation.Describe(ctx, SurfaceWebSocket, clientID, VisionInput{
			Prompt:   in.Prompt,
			Image:    in.Image,
			MimeType: in.MimeType,
		})
	} else {
		ex, err = h.conversation.Send(ctx, SurfaceWebSocket, clientID, in.ChatInput)
	}
	if err != nil {
		msg := err.Error()
		if errors.Is(err, middleware.ErrMessageTooLong) {
			msg = h.localizer.T(i18n.MsgMessageTooLong, map[string]interface{}{"Max": h.security.MaxLength()})
		}
		_ = ws.send(WSFrame{Type: FrameError, Error: msg})
		return
	}

	if err := ws.send(WSFrame{Type: FrameMessage, SessionID: ex.SessionID, Exchange: ex}); err != nil {
		log.WithError(err).Warn("Failed to write reply")
	}
}
