package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	agentService "github.com/liuxinyu/starlight/backend/internal/service/agent"
	"github.com/liuxinyu/starlight/backend/internal/service/knowledge"
	"github.com/liuxinyu/starlight/backend/pkg/utils"
)

// Handler 聊天与会话状态的HTTP处理器
type Handler struct {
	agent *agentService.Service
	graph *knowledge.Graph
}

// New 创建聊天处理器。graph 为 nil 时图谱查询接口返回 503。
func New(agent *agentService.Service, graph *knowledge.Graph) *Handler {
	return &Handler{
		agent: agent,
		graph: graph,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/chat", h.handleChat)
	r.Get("/history/{sessionID}", h.handleHistory)
	r.Get("/personality/{sessionID}", h.handleGetPersonality)
	r.Post("/personality/{sessionID}/reset", h.handleResetPersonality)
	r.Get("/graph/{sessionID}", h.handleGetGraph)
	r.Delete("/graph/{sessionID}", h.handleClearGraph)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, p, err := h.agent.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		if errors.Is(err, agentService.ErrPersonaNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "persona not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"session":     session,
		"persona":     p,
		"openingLine": p.OpeningLine,
	})
}

// handleChat 同步处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	turn, err := h.agent.ProcessTurn(r.Context(), payload.SessionID, payload.Message)
	if err != nil {
		if errors.Is(err, agentService.ErrEmptyMessage) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, turn)
}

// handleHistory 返回会话消息记录
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	history, err := h.agent.History(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, history)
}

// handleGetPersonality 返回当前性格状态
func (h *Handler) handleGetPersonality(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	state, err := h.agent.Personality(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, state)
}

// handleResetPersonality 重置性格。mode=soft 时向基线回归一步。
func (h *Handler) handleResetPersonality(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	soft := r.URL.Query().Get("mode") == "soft"

	state, err := h.agent.ResetPersonality(sessionID, soft)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, state)
}

// handleGetGraph 返回会话知识图谱的节点和边
func (h *Handler) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "knowledge graph unavailable")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	nodes, edges, err := h.graph.GraphData(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"edges": edges,
	})
}

// handleClearGraph 清空会话的图谱数据
func (h *Handler) handleClearGraph(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "knowledge graph unavailable")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := h.graph.ClearSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
