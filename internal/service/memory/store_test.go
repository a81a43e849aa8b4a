package memory

import (
	"context"
	"strings"
	"testing"
)

// fakeEmbedder 产出确定性的三维向量，便于离线验证检索排序。
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	switch {
	case strings.Contains(text, "音乐"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "美食"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func TestSearchEmptySession(t *testing.T) {
	store := NewStore(fakeEmbedder{})

	items, err := store.Search(context.Background(), "音乐", "session-1", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestAddTurnAndSearch(t *testing.T) {
	store := NewStore(fakeEmbedder{})
	ctx := context.Background()

	if err := store.AddTurn(ctx, "session-1", "我喜欢听音乐", "我也是！", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.AddTurn(ctx, "session-1", "推荐点美食吧", "拉面怎么样？", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := store.Search(ctx, "说说音乐", "session-1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if !strings.Contains(items[0].Content, "音乐") {
		t.Fatalf("expected the music turn to rank first, got %q", items[0].Content)
	}
	if items[0].Metadata["session_id"] != "session-1" {
		t.Fatalf("expected session metadata, got %v", items[0].Metadata)
	}
}

func TestSearchCapsKToCollectionSize(t *testing.T) {
	store := NewStore(fakeEmbedder{})
	ctx := context.Background()

	if err := store.AddTurn(ctx, "session-2", "今天去听了音乐会", "真好！", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := store.Search(ctx, "音乐", "session-2", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	store := NewStore(fakeEmbedder{})
	ctx := context.Background()

	if err := store.AddTurn(ctx, "session-a", "我喜欢音乐", "嗯嗯！", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := store.Search(ctx, "音乐", "session-b", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("memories must not leak across sessions, got %d items", len(items))
	}
}
