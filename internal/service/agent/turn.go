package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liuxinyu/starlight/backend/internal/analysis/impact"
	"github.com/liuxinyu/starlight/backend/internal/analysis/intent"
	"github.com/liuxinyu/starlight/backend/internal/model/chat"
	"github.com/liuxinyu/starlight/backend/internal/model/personality"
	"github.com/liuxinyu/starlight/backend/internal/service/ai"
	"github.com/liuxinyu/starlight/backend/internal/service/knowledge"
	"github.com/liuxinyu/starlight/backend/internal/service/memory"
)

// 轮次流水线的五个阶段。
const (
	StageMemory     = "memory_retrieval"
	StageGraph      = "graph_context"
	StageEvolution  = "personality_evolution"
	StageGeneration = "response_generation"
	StageKnowledge  = "knowledge_update"
)

// 阶段状态：ok 表示正常，degraded 表示该阶段失败但轮次继续。
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// StageResult 记录单个阶段的执行结果，用于调试与前端展示。
type StageResult struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Turn 是一次完整对话轮次的结果。
type Turn struct {
	SessionID string                        `json:"sessionId"`
	Reply     string                        `json:"reply"`
	Intent    intent.Type                   `json:"intent"`
	Emotion   impact.Emotion                `json:"emotion"`
	Topic     string                        `json:"topic,omitempty"`
	Traits    map[personality.Trait]float64 `json:"traits"`
	Stages    []StageResult                 `json:"stages"`
}

// ProcessTurn 同步处理一轮对话：检索记忆、拉取图谱上下文、演化性格、
// 生成回复并更新知识。任何单阶段失败都会降级而不是中断整轮。
func (s *Service) ProcessTurn(ctx context.Context, sessionID, message string) (*Turn, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	state := s.resolve(ctx, sessionID)
	state.mu.Lock()
	defer state.mu.Unlock()

	turn, req := s.prepareTurn(ctx, state, message)

	reply, err := s.generator.Generate(ctx, req)
	if err != nil {
		log.Printf("[agent] response generation failed session=%s: %v", sessionID, err)
		reply = ai.FallbackReply
		turn.Stages = append(turn.Stages, StageResult{Stage: StageGeneration, Status: StatusDegraded, Detail: err.Error()})
	} else {
		turn.Stages = append(turn.Stages, StageResult{Stage: StageGeneration, Status: StatusOK})
	}
	turn.Reply = reply

	s.commitTurn(ctx, state, message, reply, turn)
	return turn, nil
}

// prepareTurn 执行生成前的三个阶段并组装生成请求。调用方必须持有 state.mu。
func (s *Service) prepareTurn(ctx context.Context, state *sessionState, message string) (*Turn, ai.Request) {
	sessionID := state.session.ID
	turn := &Turn{SessionID: sessionID, Stages: make([]StageResult, 0, 5)}

	// 阶段一：向量记忆检索。
	var memories []memory.Item
	items, err := s.memories.Search(ctx, message, sessionID, s.cfg.RetrievalK)
	if err != nil {
		log.Printf("[agent] memory retrieval failed session=%s: %v", sessionID, err)
		turn.Stages = append(turn.Stages, StageResult{Stage: StageMemory, Status: StatusDegraded, Detail: err.Error()})
	} else {
		memories = items
		turn.Stages = append(turn.Stages, StageResult{Stage: StageMemory, Status: StatusOK, Detail: fmt.Sprintf("hits=%d", len(items))})
	}

	// 阶段二：图谱上下文。
	var graphCtx knowledge.Context
	if s.graph == nil {
		turn.Stages = append(turn.Stages, StageResult{Stage: StageGraph, Status: StatusDegraded, Detail: "graph disabled"})
	} else if fetched, err := s.graph.FetchContext(ctx, message, sessionID, s.cfg.GraphLimit, s.cfg.PreferenceLimit); err != nil {
		log.Printf("[agent] graph context failed session=%s: %v", sessionID, err)
		turn.Stages = append(turn.Stages, StageResult{Stage: StageGraph, Status: StatusDegraded, Detail: err.Error()})
	} else {
		graphCtx = fetched
		turn.Stages = append(turn.Stages, StageResult{Stage: StageGraph, Status: StatusOK})
	}

	// 阶段三：性格演化。失败时保持当前向量继续。
	analysis, err := s.evolver.Evolve(ctx, message, state.vector)
	if err != nil {
		log.Printf("[agent] personality evolution failed session=%s: %v", sessionID, err)
		turn.Stages = append(turn.Stages, StageResult{Stage: StageEvolution, Status: StatusDegraded, Detail: err.Error()})
	} else {
		turn.Stages = append(turn.Stages, StageResult{Stage: StageEvolution, Status: StatusOK, Detail: string(analysis.UserEmotion)})
	}
	turn.Emotion = analysis.UserEmotion
	turn.Topic = analysis.TopicType
	turn.Traits = state.vector.Snapshot()

	// 阶段四的前半：意图识别是纯规则，不会失败。
	intentResult := intent.Classify(message)
	turn.Intent = intentResult.Intent

	req := ai.Request{
		Persona:  state.persona,
		Traits:   turn.Traits,
		Memories: memories,
		Graph:    graphCtx,
		Intent:   intentResult,
		History:  state.history,
		Message:  message,
	}
	return turn, req
}

// commitTurn 落盘一轮对话：会话历史、向量记忆与知识图谱。
// 调用方必须持有 state.mu。
func (s *Service) commitTurn(ctx context.Context, state *sessionState, userMessage, reply string, turn *Turn) {
	now := time.Now()
	state.history = append(state.history,
		chat.Message{
			ID:        uuid.New().String(),
			SessionID: state.session.ID,
			Role:      "user",
			Content:   userMessage,
			CreatedAt: now,
		},
		chat.Message{
			ID:        uuid.New().String(),
			SessionID: state.session.ID,
			Role:      "assistant",
			Content:   reply,
			CreatedAt: now,
		},
	)

	// 阶段五：知识更新。向量记忆和图谱各自独立降级。
	detail := ""
	status := StatusOK
	if err := s.memories.AddTurn(ctx, state.session.ID, userMessage, reply, map[string]string{
		"emotion": string(turn.Emotion),
		"intent":  string(turn.Intent),
		"topic":   turn.Topic,
	}); err != nil {
		log.Printf("[agent] memory persist failed session=%s: %v", state.session.ID, err)
		status = StatusDegraded
		detail = err.Error()
	}

	if s.updater != nil {
		dialogue := fmt.Sprintf("用户: %s\n偶像: %s", userMessage, reply)
		if stats, err := s.updater.UpdateFromDialogue(ctx, dialogue, state.session.ID); err != nil {
			log.Printf("[agent] knowledge update failed session=%s: %v", state.session.ID, err)
			status = StatusDegraded
			if detail != "" {
				detail += "; "
			}
			detail += err.Error()
		} else if stats.NodesCreated > 0 || stats.RelationshipsCreated > 0 {
			log.Printf("[agent] knowledge updated session=%s nodes=%d rels=%d",
				state.session.ID, stats.NodesCreated, stats.RelationshipsCreated)
		}
	}

	turn.Stages = append(turn.Stages, StageResult{Stage: StageKnowledge, Status: status, Detail: detail})
}
