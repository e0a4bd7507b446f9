package handlers

import (
	"encoding/json"
	"net/http"

	config "github.com/avvvet/csss-services/configs"
	"github.com/avvvet/csss-services/internal/comm"
	"github.com/avvvet/csss-services/internal/scansvc/auth"
	"github.com/avvvet/csss-services/internal/socketsvc/ws"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	upgrader websocket.Upgrader
	ws       *ws.Ws
	tokens   *auth.Tokens
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func NewHandler(s *ws.Ws, tokens *auth.Tokens) *Handler {
	h := &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ws:     s,
		tokens: tokens,
	}
	return h
}

// HandleWebSocket authenticates ?token= and registers the socket under
// the token's user and role. Browsers cannot set headers on upgrades.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Parse(r.URL.Query().Get("token"))
	if err != nil {
		h.CreateResponse(w, Response{Code: http.StatusUnauthorized, Error: "Invalid or expired token"})
		return
	}
	if err := claims.Authenticated(); err != nil || !claims.Role.Valid() {
		h.CreateResponse(w, Response{Code: http.StatusUnauthorized, Error: auth.ErrPreAuth.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	h.ws.StoreConnection(socketId, conn, claims.UserID, claims.Role)

	log.Infof("New WebSocket connection %s for user %d (%s)", socketId, claims.UserID, claims.Role)

	go h.handleConnection(conn, socketId)
}

func (h *Handler) handleConnection(conn *websocket.Conn, socketId string) {
	defer func() {
		log.Infof("Closing WebSocket connection: %s", socketId)
		h.ws.HandleDisconnect(socketId)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("WebSocket unexpected close error for socket %s: %v", socketId, err)
			}
			break
		}

		message := &comm.Message{}
		if err := json.Unmarshal(raw, message); err != nil {
			log.Errorf("Failed to unmarshal message from socket %s: %v", socketId, err)
			h.ws.SendError(socketId, "Invalid message format")
			continue
		}

		h.ws.SocketMessage(socketId, message)
	}
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "socket service is running",
		Code:    http.StatusOK,
		Data: map[string]interface{}{
			"connections": h.ws.Count(),
			"instance":    config.GetInstanceId(),
		},
	})
}
