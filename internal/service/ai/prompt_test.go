package ai

import (
	"strings"
	"testing"

	"github.com/liuxinyu/starlight/backend/internal/model/persona"
	"github.com/liuxinyu/starlight/backend/internal/model/personality"
	"github.com/liuxinyu/starlight/backend/internal/service/knowledge"
	"github.com/liuxinyu/starlight/backend/internal/service/memory"
)

func testRequest() Request {
	p, _ := persona.NewMemoryStore(persona.Seed()).FindByID("hoshino-hikari")
	return Request{
		Persona: p,
		Traits: map[personality.Trait]float64{
			personality.Cheerfulness: 0.85,
			personality.Gentleness:   0.6,
			personality.Energy:       0.9,
			personality.Curiosity:    0.7,
			personality.Empathy:      0.5,
		},
		Message: "你好呀",
	}
}

func TestBuildSystemPromptIncludesPersona(t *testing.T) {
	prompt := BuildSystemPrompt(testRequest())

	if !strings.Contains(prompt, "星野光") {
		t.Fatal("prompt should include persona name")
	}
	if !strings.Contains(prompt, "17岁") {
		t.Fatal("prompt should include persona age")
	}
	if !strings.Contains(prompt, "不要暴露自己是AI") {
		t.Fatal("prompt should carry the stay-in-character rule")
	}
}

func TestBuildSystemPromptRendersTraitLevels(t *testing.T) {
	prompt := BuildSystemPrompt(testRequest())

	if !strings.Contains(prompt, "开朗: 0.85（非常高）") {
		t.Fatalf("expected rendered cheerfulness level, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "共情力: 0.50（中等）") {
		t.Fatalf("expected rendered empathy level, got:\n%s", prompt)
	}
}

func TestBuildSystemPromptTruncatesMemories(t *testing.T) {
	req := testRequest()
	long := strings.Repeat("音", 150)
	req.Memories = []memory.Item{{Content: long}}

	prompt := BuildSystemPrompt(req)

	if strings.Contains(prompt, long) {
		t.Fatal("memory preview should be truncated")
	}
	if !strings.Contains(prompt, strings.Repeat("音", 100)+"...") {
		t.Fatal("expected truncated preview with ellipsis")
	}
}

func TestBuildSystemPromptCapsMemoryCount(t *testing.T) {
	req := testRequest()
	req.Memories = []memory.Item{
		{Content: "记忆一"}, {Content: "记忆二"}, {Content: "记忆三"}, {Content: "记忆四"},
	}

	prompt := BuildSystemPrompt(req)

	if !strings.Contains(prompt, "记忆三") {
		t.Fatal("expected third memory present")
	}
	if strings.Contains(prompt, "记忆四") {
		t.Fatal("expected fourth memory dropped")
	}
}

func TestBuildSystemPromptRendersPreferences(t *testing.T) {
	req := testRequest()
	req.Graph = knowledge.Context{
		Preferences: []knowledge.Preference{{Name: "摇滚乐", Description: "用户喜欢听摇滚"}},
	}

	prompt := BuildSystemPrompt(req)

	if !strings.Contains(prompt, "摇滚乐：用户喜欢听摇滚") {
		t.Fatalf("expected preference rendered, got:\n%s", prompt)
	}
}

func TestBuildSystemPromptTopicsFallback(t *testing.T) {
	prompt := BuildSystemPrompt(testRequest())

	if !strings.Contains(prompt, "【最近聊过的话题】日常对话") {
		t.Fatal("expected topic placeholder without graph context")
	}
}

func TestFormatTopicsDeduplicatesAndCaps(t *testing.T) {
	req := testRequest()
	req.Graph = knowledge.Context{
		Subgraph: []knowledge.Record{
			{"name": "演唱会"},
			{"name": "演唱会"},
			{"name": "吉他"},
			{"name": "夏祭り"},
			{"name": "录音棚"},
		},
	}

	got := formatTopics(req)
	if got != "演唱会、吉他、夏祭り" {
		t.Fatalf("unexpected topics: %q", got)
	}
}

func TestFormatTopicsPrefersMemoryTags(t *testing.T) {
	req := testRequest()
	req.Memories = []memory.Item{
		{Content: "用户: 听歌", Metadata: map[string]string{"topic": "music"}},
		{Content: "用户: 随便聊聊", Metadata: map[string]string{"topic": "other"}},
	}
	req.Graph = knowledge.Context{
		Subgraph: []knowledge.Record{{"name": "演唱会"}},
	}

	got := formatTopics(req)
	if got != "music、演唱会" {
		t.Fatalf("unexpected topics: %q", got)
	}
}
