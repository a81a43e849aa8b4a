package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/liuxinyu/starlight/backend/internal/config"
	"github.com/liuxinyu/starlight/backend/internal/model/persona"
	"github.com/liuxinyu/starlight/backend/internal/service/ai"
	"github.com/liuxinyu/starlight/backend/internal/service/knowledge"
	"github.com/liuxinyu/starlight/backend/internal/service/memory"
	personalityService "github.com/liuxinyu/starlight/backend/internal/service/personality"
)

type stubMemory struct {
	failSearch bool
	failAdd    bool
	added      []string
}

func (m *stubMemory) Search(_ context.Context, _, _ string, _ int) ([]memory.Item, error) {
	if m.failSearch {
		return nil, errors.New("vector store down")
	}
	return []memory.Item{{Content: "用户: 上次我们聊过音乐\n偶像: 对呀！", Score: 0.9}}, nil
}

func (m *stubMemory) AddTurn(_ context.Context, _, userMessage, assistantMessage string, _ map[string]string) error {
	if m.failAdd {
		return errors.New("vector store down")
	}
	m.added = append(m.added, userMessage+"|"+assistantMessage)
	return nil
}

type stubGraph struct {
	fail    bool
	ensured []string
	fetched int
}

func (g *stubGraph) EnsureSession(_ context.Context, sessionID string) error {
	g.ensured = append(g.ensured, sessionID)
	return nil
}

func (g *stubGraph) FetchContext(_ context.Context, _, _ string, _, _ int) (knowledge.Context, error) {
	if g.fail {
		return knowledge.Context{}, errors.New("neo4j unavailable")
	}
	g.fetched++
	return knowledge.Context{
		Preferences: []knowledge.Preference{{Name: "摇滚乐", Description: "用户喜欢摇滚乐"}},
	}, nil
}

type stubUpdater struct {
	fail      bool
	dialogues []string
}

func (u *stubUpdater) UpdateFromDialogue(_ context.Context, dialogue, _ string) (knowledge.Stats, error) {
	if u.fail {
		return knowledge.Stats{}, errors.New("neo4j unavailable")
	}
	u.dialogues = append(u.dialogues, dialogue)
	return knowledge.Stats{NodesCreated: 1}, nil
}

type stubGenerator struct {
	reply        string
	failGenerate bool
	failStream   bool
	chunks       []string
}

func (g *stubGenerator) Generate(_ context.Context, _ ai.Request) (string, error) {
	if g.failGenerate {
		return "", errors.New("model timeout")
	}
	return g.reply, nil
}

func (g *stubGenerator) Stream(_ context.Context, _ ai.Request) (*schema.StreamReader[*schema.Message], error) {
	if g.failStream {
		return nil, errors.New("model timeout")
	}
	msgs := make([]*schema.Message, len(g.chunks))
	for i, chunk := range g.chunks {
		msgs[i] = schema.AssistantMessage(chunk, nil)
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func testConfig() config.AgentConfig {
	return config.AgentConfig{
		EvolutionRate:   0.05,
		MaxDrift:        0.2,
		HistoryLimit:    20,
		RetrievalK:      3,
		GraphLimit:      10,
		PreferenceLimit: 5,
	}
}

func newTestService(t *testing.T, mem *stubMemory, graph *stubGraph, updater *stubUpdater, gen *stubGenerator) *Service {
	t.Helper()
	evolver, err := personalityService.NewEvolver(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var fetcher ContextFetcher
	var ku KnowledgeUpdater
	if graph != nil {
		fetcher = graph
	}
	if updater != nil {
		ku = updater
	}
	return NewService(testConfig(), persona.NewMemoryStore(persona.Seed()), mem, fetcher, ku, evolver, gen)
}

func TestProcessTurnHappyPath(t *testing.T) {
	mem := &stubMemory{}
	graph := &stubGraph{}
	updater := &stubUpdater{}
	gen := &stubGenerator{reply: "嘿嘿，今天也一起加油吧！"}
	svc := newTestService(t, mem, graph, updater, gen)

	session, _, err := svc.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	turn, err := svc.ProcessTurn(context.Background(), session.ID, "今天很开心！")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if turn.Reply != gen.reply {
		t.Fatalf("expected generator reply, got %q", turn.Reply)
	}
	if len(turn.Stages) != 5 {
		t.Fatalf("expected 5 stage results, got %d", len(turn.Stages))
	}
	for _, stage := range turn.Stages {
		if stage.Status != StatusOK {
			t.Fatalf("stage %s should be ok, got %s (%s)", stage.Stage, stage.Status, stage.Detail)
		}
	}
	if len(mem.added) != 1 {
		t.Fatalf("expected one persisted turn, got %d", len(mem.added))
	}
	if len(updater.dialogues) != 1 || !strings.Contains(updater.dialogues[0], "今天很开心") {
		t.Fatalf("expected dialogue forwarded to knowledge updater, got %v", updater.dialogues)
	}

	history, err := svc.History(session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %s, %s", history[0].Role, history[1].Role)
	}
}

func TestProcessTurnSurvivesStoreOutages(t *testing.T) {
	mem := &stubMemory{failSearch: true, failAdd: true}
	graph := &stubGraph{fail: true}
	updater := &stubUpdater{fail: true}
	gen := &stubGenerator{reply: "没关系，我在听哦～"}
	svc := newTestService(t, mem, graph, updater, gen)

	turn, err := svc.ProcessTurn(context.Background(), "session-outage", "最近好烦")
	if err != nil {
		t.Fatalf("pipeline must not fail on store outages: %v", err)
	}
	if turn.Reply == "" {
		t.Fatal("expected a non-empty reply despite store outages")
	}

	degraded := map[string]bool{}
	for _, stage := range turn.Stages {
		if stage.Status == StatusDegraded {
			degraded[stage.Stage] = true
		}
	}
	for _, stage := range []string{StageMemory, StageGraph, StageKnowledge} {
		if !degraded[stage] {
			t.Fatalf("expected %s to be degraded", stage)
		}
	}
}

func TestProcessTurnFallbackReplyOnGenerationFailure(t *testing.T) {
	mem := &stubMemory{}
	gen := &stubGenerator{failGenerate: true}
	svc := newTestService(t, mem, nil, nil, gen)

	turn, err := svc.ProcessTurn(context.Background(), "session-genfail", "你好呀")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Reply != ai.FallbackReply {
		t.Fatalf("expected fallback reply, got %q", turn.Reply)
	}

	// 道歉回复也要进入历史与记忆，保持轮次完整。
	if len(mem.added) != 1 {
		t.Fatalf("expected fallback turn persisted, got %d", len(mem.added))
	}
}

func TestProcessTurnEvolvesPersonality(t *testing.T) {
	svc := newTestService(t, &stubMemory{}, nil, nil, &stubGenerator{reply: "好耶！"})

	session, p, err := svc.CreateSession(context.Background(), "hoshino-hikari")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	baselineCheer := p.BaseTraits["cheerfulness"]

	if _, err := svc.ProcessTurn(context.Background(), session.ID, "今天超开心，谢谢你！"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := svc.Personality(session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.UpdateCount != 1 {
		t.Fatalf("expected one personality update, got %d", state.UpdateCount)
	}
	if got := state.Traits["cheerfulness"]; got <= baselineCheer {
		t.Fatalf("cheerfulness should rise above baseline %v, got %v", baselineCheer, got)
	}
	if !state.WithinBounds {
		t.Fatal("personality must stay within drift bounds")
	}
}

func TestProcessTurnRejectsEmptyMessage(t *testing.T) {
	svc := newTestService(t, &stubMemory{}, nil, nil, &stubGenerator{reply: "ok"})

	if _, err := svc.ProcessTurn(context.Background(), "s1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.StreamTurn(context.Background(), "s1", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestCreateSessionUnknownPersona(t *testing.T) {
	svc := newTestService(t, &stubMemory{}, nil, nil, &stubGenerator{reply: "ok"})

	if _, _, err := svc.CreateSession(context.Background(), "no-such-idol"); !errors.Is(err, ErrPersonaNotFound) {
		t.Fatalf("expected ErrPersonaNotFound, got %v", err)
	}
}

func TestResetPersonality(t *testing.T) {
	svc := newTestService(t, &stubMemory{}, nil, nil, &stubGenerator{reply: "好耶！"})
	session, _, _ := svc.CreateSession(context.Background(), "")

	if _, err := svc.ProcessTurn(context.Background(), session.ID, "太棒了哈哈"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := svc.ResetPersonality(session.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for trait, base := range state.Baseline {
		if state.Traits[trait] != base {
			t.Fatalf("trait %s not reset: %v != %v", trait, state.Traits[trait], base)
		}
	}
}

func TestStreamTurnDeliversChunksAndCommits(t *testing.T) {
	mem := &stubMemory{}
	gen := &stubGenerator{chunks: []string{"今天", "也要", "元气满满！"}}
	svc := newTestService(t, mem, nil, nil, gen)

	ts, err := svc.StreamTurn(context.Background(), "session-stream", "早安！")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got strings.Builder
	for {
		chunk, err := ts.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected recv error: %v", err)
		}
		got.WriteString(chunk)
	}

	want := "今天也要元气满满！"
	if got.String() != want {
		t.Fatalf("expected %q, got %q", want, got.String())
	}
	if ts.Turn().Reply != want {
		t.Fatalf("turn reply mismatch: %q", ts.Turn().Reply)
	}
	if len(mem.added) != 1 {
		t.Fatalf("expected stream turn persisted, got %d", len(mem.added))
	}

	history, err := svc.History("session-stream")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 || history[1].Content != want {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestStreamTurnEarlyClosePersistsPartialText(t *testing.T) {
	mem := &stubMemory{}
	gen := &stubGenerator{chunks: []string{"其实我", "还想说很多…"}}
	svc := newTestService(t, mem, nil, nil, gen)

	ts, err := svc.StreamTurn(context.Background(), "session-abort", "在吗？")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunk, err := ts.Recv()
	if err != nil {
		t.Fatalf("unexpected recv error: %v", err)
	}
	ts.Close()

	if len(mem.added) != 1 {
		t.Fatalf("partial text should still be persisted, got %d adds", len(mem.added))
	}
	if !strings.Contains(mem.added[0], chunk) {
		t.Fatalf("persisted turn should contain partial text %q: %q", chunk, mem.added[0])
	}
	if ts.Turn().Reply != chunk {
		t.Fatalf("expected partial reply %q, got %q", chunk, ts.Turn().Reply)
	}
}

func TestStreamTurnSetupFailureYieldsApology(t *testing.T) {
	mem := &stubMemory{}
	gen := &stubGenerator{failStream: true}
	svc := newTestService(t, mem, nil, nil, gen)

	ts, err := svc.StreamTurn(context.Background(), "session-fallback", "你好")
	if err != nil {
		t.Fatalf("stream setup failure should degrade, not error: %v", err)
	}

	chunk, err := ts.Recv()
	if err != nil {
		t.Fatalf("unexpected recv error: %v", err)
	}
	if chunk != ai.FallbackReply {
		t.Fatalf("expected fallback reply, got %q", chunk)
	}

	if _, err := ts.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after fallback, got %v", err)
	}
	if len(mem.added) != 1 {
		t.Fatalf("fallback turn should be persisted, got %d", len(mem.added))
	}
}

func TestStreamTurnAutoCreatesSession(t *testing.T) {
	svc := newTestService(t, &stubMemory{}, &stubGraph{}, nil, &stubGenerator{chunks: []string{"嗨！"}})

	ts, err := svc.StreamTurn(context.Background(), "fresh-session", "嗨")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for {
		if _, err := ts.Recv(); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatalf("unexpected recv error: %v", err)
		}
	}

	if _, ok := svc.Session("fresh-session"); !ok {
		t.Fatal("session should be auto-created")
	}
	if _, err := svc.Personality("fresh-session"); err != nil {
		t.Fatalf("personality should be available: %v", err)
	}
}
