package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	agentService "github.com/liuxinyu/starlight/backend/internal/service/agent"
)

// Handler 通过 WebSocket 进行双向对话，每条入站消息触发一轮流式回复。
type Handler struct {
	agent    *agentService.Service
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(agent *agentService.Service) *Handler {
	return &Handler{
		agent: agent,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleConnection)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Turn    any    `json:"turn,omitempty"`
}

func (h *Handler) handleConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		switch msg.Type {
		case "chat":
			if msg.Message == "" {
				h.send(conn, outboundMessage{Type: "error", Error: "message is required"})
				continue
			}
			h.handleChat(r.Context(), conn, sessionID, msg.Message)
		case "ping":
			h.send(conn, outboundMessage{Type: "pong"})
		default:
			h.send(conn, outboundMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Handler) handleChat(ctx context.Context, conn *websocket.Conn, sessionID, message string) {
	turnStream, err := h.agent.StreamTurn(ctx, sessionID, message)
	if err != nil {
		h.send(conn, outboundMessage{Type: "error", Error: err.Error()})
		return
	}
	defer turnStream.Close()

	for {
		chunk, err := turnStream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.send(conn, outboundMessage{Type: "error", Error: err.Error()})
			break
		}
		if chunk == "" {
			continue
		}
		h.send(conn, outboundMessage{Type: "chunk", Content: chunk})
	}

	h.send(conn, outboundMessage{Type: "done", Turn: turnStream.Turn()})
}

func (h *Handler) send(conn *websocket.Conn, msg outboundMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("[websocket] write failed: %v", err)
	}
}
