package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	agentService "github.com/liuxinyu/starlight/backend/internal/service/agent"
	"github.com/liuxinyu/starlight/backend/pkg/utils"
)

// Handler 通过 Server-Sent Events 推送流式回复
type Handler struct {
	agent *agentService.Service
}

// New 创建流式处理器
func New(agent *agentService.Service) *Handler {
	return &Handler{agent: agent}
}

// StreamResponse 单个SSE事件
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
	Turn      any    `json:"turn,omitempty"`
}

// HandleStreamRequest 处理一次流式对话请求
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	turnStream, err := h.agent.StreamTurn(ctx, sessionID, userMessage)
	if err != nil {
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "error", Error: err.Error()})
		return err
	}
	defer turnStream.Close()

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
	})

	for {
		select {
		case <-ctx.Done():
			// 客户端断开，部分文本由 Close 落盘。
			log.Printf("[stream] client disconnected session=%s", sessionID)
			return nil
		default:
		}

		chunk, err := turnStream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			utils.SendSSEChunk(w, flusher, StreamResponse{Event: "error", Error: err.Error()})
			break
		}
		if chunk == "" {
			continue
		}

		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:   "chunk",
			Content: chunk,
		})
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "done",
		SessionID: sessionID,
		Finished:  true,
		Turn:      turnStream.Turn(),
	})
	return nil
}
