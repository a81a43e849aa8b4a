package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/liuxinyu/starlight/backend/internal/analysis/impact"
	"github.com/liuxinyu/starlight/backend/internal/config"
	"github.com/liuxinyu/starlight/backend/internal/model/chat"
	"github.com/liuxinyu/starlight/backend/internal/model/persona"
	"github.com/liuxinyu/starlight/backend/internal/model/personality"
	"github.com/liuxinyu/starlight/backend/internal/service/ai"
	"github.com/liuxinyu/starlight/backend/internal/service/knowledge"
	"github.com/liuxinyu/starlight/backend/internal/service/memory"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrEmptyMessage    = errors.New("message is empty")
)

// MemoryRetriever 提供向量记忆的读写。
type MemoryRetriever interface {
	Search(ctx context.Context, query, sessionID string, k int) ([]memory.Item, error)
	AddTurn(ctx context.Context, sessionID, userMessage, assistantMessage string, metadata map[string]string) error
}

// ContextFetcher 提供知识图谱上下文。
type ContextFetcher interface {
	EnsureSession(ctx context.Context, sessionID string) error
	FetchContext(ctx context.Context, query, sessionID string, limit, preferenceLimit int) (knowledge.Context, error)
}

// KnowledgeUpdater 从对话中抽取实体关系写入图谱。
type KnowledgeUpdater interface {
	UpdateFromDialogue(ctx context.Context, dialogue, sessionID string) (knowledge.Stats, error)
}

// Evolver 根据用户输入演化性格向量。
type Evolver interface {
	Evolve(ctx context.Context, userInput string, vector *personality.Vector) (impact.Analysis, error)
}

// Generator 生成偶像回复。
type Generator interface {
	Generate(ctx context.Context, req ai.Request) (string, error)
	Stream(ctx context.Context, req ai.Request) (*schema.StreamReader[*schema.Message], error)
}

// sessionState 是一个会话的全部可变状态，turn 级别串行访问。
type sessionState struct {
	mu      sync.Mutex
	session chat.Session
	persona persona.Persona
	vector  *personality.Vector
	history []chat.Message
}

// Service 把记忆检索、图谱上下文、性格演化、回复生成和知识更新
// 串成一次完整的对话轮次。
type Service struct {
	cfg       config.AgentConfig
	personas  persona.Store
	memories  MemoryRetriever
	graph     ContextFetcher
	updater   KnowledgeUpdater
	evolver   Evolver
	generator Generator

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// NewService 创建对话编排服务。graph 和 updater 允许为 nil（图谱未配置时降级）。
func NewService(
	cfg config.AgentConfig,
	personas persona.Store,
	memories MemoryRetriever,
	graph ContextFetcher,
	updater KnowledgeUpdater,
	evolver Evolver,
	generator Generator,
) *Service {
	return &Service{
		cfg:       cfg,
		personas:  personas,
		memories:  memories,
		graph:     graph,
		updater:   updater,
		evolver:   evolver,
		generator: generator,
		sessions:  make(map[string]*sessionState),
	}
}

// CreateSession 为指定人设开启一个新会话。personaID 为空时使用默认人设。
func (s *Service) CreateSession(ctx context.Context, personaID string) (chat.Session, persona.Persona, error) {
	var p persona.Persona
	if personaID == "" {
		p = s.personas.Default()
	} else {
		found, ok := s.personas.FindByID(personaID)
		if !ok {
			return chat.Session{}, persona.Persona{}, ErrPersonaNotFound
		}
		p = found
	}

	session := chat.Session{
		ID:        uuid.New().String(),
		PersonaID: p.ID,
		CreatedAt: time.Now(),
	}

	state := &sessionState{
		session: session,
		persona: p,
		vector:  personality.New(p.BaseTraits, s.cfg.EvolutionRate, s.cfg.MaxDrift),
	}

	s.mu.Lock()
	s.sessions[session.ID] = state
	s.mu.Unlock()

	if s.graph != nil {
		// 图谱锚点失败不阻塞会话创建，后续轮次按降级处理。
		_ = s.graph.EnsureSession(ctx, session.ID)
	}

	return session, p, nil
}

// Session 返回会话元信息。
func (s *Service) Session(sessionID string) (chat.Session, bool) {
	state, ok := s.lookup(sessionID)
	if !ok {
		return chat.Session{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.session, true
}

// History 返回会话的消息记录副本。
func (s *Service) History(sessionID string) ([]chat.Message, error) {
	state, ok := s.lookup(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	history := make([]chat.Message, len(state.history))
	copy(history, state.history)
	return history, nil
}

// PersonalityState 是性格向量的完整只读视图。
type PersonalityState struct {
	PersonaID    string                        `json:"personaId"`
	Traits       map[personality.Trait]float64 `json:"traits"`
	Baseline     map[personality.Trait]float64 `json:"baseline"`
	Drift        map[personality.Trait]float64 `json:"drift"`
	UpdateCount  int                           `json:"updateCount"`
	WithinBounds bool                          `json:"withinBounds"`
	Dominant     []personality.Trait           `json:"dominant"`
	History      []personality.HistoryEntry    `json:"history"`
}

// Personality 返回会话当前的性格状态。
func (s *Service) Personality(sessionID string) (PersonalityState, error) {
	state, ok := s.lookup(sessionID)
	if !ok {
		return PersonalityState{}, ErrSessionNotFound
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return PersonalityState{
		PersonaID:    state.persona.ID,
		Traits:       state.vector.Snapshot(),
		Baseline:     state.vector.Baseline(),
		Drift:        state.vector.Drift(),
		UpdateCount:  state.vector.UpdateCount(),
		WithinBounds: state.vector.IsWithinBounds(),
		Dominant:     state.vector.DominantTraits(2),
		History:      state.vector.History(),
	}, nil
}

// ResetPersonality 重置性格向量。soft 为 true 时向基线缓慢回归一步，
// 否则立即恢复到基线。
func (s *Service) ResetPersonality(sessionID string, soft bool) (PersonalityState, error) {
	state, ok := s.lookup(sessionID)
	if !ok {
		return PersonalityState{}, ErrSessionNotFound
	}
	state.mu.Lock()
	if soft {
		state.vector.SoftReset()
	} else {
		state.vector.Reset()
	}
	state.mu.Unlock()
	return s.Personality(sessionID)
}

func (s *Service) lookup(sessionID string) (*sessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	return state, ok
}

// resolve 返回会话状态，不存在时用默认人设按给定 ID 自动建立，
// 这样直连流式接口的客户端不必先显式建会话。
func (s *Service) resolve(ctx context.Context, sessionID string) *sessionState {
	if state, ok := s.lookup(sessionID); ok {
		return state
	}

	s.mu.Lock()
	if state, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return state
	}
	p := s.personas.Default()
	state := &sessionState{
		session: chat.Session{
			ID:        sessionID,
			PersonaID: p.ID,
			CreatedAt: time.Now(),
		},
		persona: p,
		vector:  personality.New(p.BaseTraits, s.cfg.EvolutionRate, s.cfg.MaxDrift),
	}
	s.sessions[sessionID] = state
	s.mu.Unlock()

	if s.graph != nil {
		_ = s.graph.EnsureSession(ctx, sessionID)
	}
	return state
}
