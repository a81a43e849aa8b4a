package personality

import (
	"context"
	"math"
	"testing"

	"github.com/liuxinyu/starlight/backend/internal/analysis/impact"
	personalitymodel "github.com/liuxinyu/starlight/backend/internal/model/personality"
)

func newTestVector() *personalitymodel.Vector {
	return personalitymodel.New(map[personalitymodel.Trait]float64{
		personalitymodel.Cheerfulness: 0.8,
		personalitymodel.Gentleness:   0.6,
		personalitymodel.Energy:       0.9,
		personalitymodel.Curiosity:    0.7,
		personalitymodel.Empathy:      0.5,
	}, 0.05, 0.2)
}

func TestEvolveWithRuleFallback(t *testing.T) {
	evolver, err := NewEvolver(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vector := newTestVector()
	analysis, err := evolver.Evolve(context.Background(), "今天很开心，谢谢你！", vector)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if analysis.UserEmotion != impact.Positive {
		t.Fatalf("expected positive emotion, got %s", analysis.UserEmotion)
	}

	// 规则影响 0.1 被单次演化率 0.05 钳制。
	got := vector.Snapshot()[personalitymodel.Cheerfulness]
	if math.Abs(got-0.85) > 1e-9 {
		t.Fatalf("expected cheerfulness 0.85, got %v", got)
	}
	if vector.UpdateCount() != 1 {
		t.Fatalf("expected one update, got %d", vector.UpdateCount())
	}
}

func TestEvolveNegativeInputLiftsEmpathy(t *testing.T) {
	evolver, err := NewEvolver(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vector := newTestVector()
	analysis, err := evolver.Evolve(context.Background(), "我难过，最近很累", vector)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if analysis.UserEmotion != impact.Negative {
		t.Fatalf("expected negative emotion, got %s", analysis.UserEmotion)
	}
	if got := vector.Snapshot()[personalitymodel.Empathy]; got <= 0.5 {
		t.Fatalf("empathy should rise on negative input, got %v", got)
	}
	if got := vector.Snapshot()[personalitymodel.Cheerfulness]; got >= 0.8 {
		t.Fatalf("cheerfulness should dip on negative input, got %v", got)
	}
}

func TestEvolveKeepsVectorWithinBounds(t *testing.T) {
	evolver, err := NewEvolver(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vector := newTestVector()
	for i := 0; i < 30; i++ {
		if _, err := evolver.Evolve(context.Background(), "太棒了！今天超开心哈哈", vector); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if !vector.IsWithinBounds() {
		t.Fatalf("vector drifted out of bounds: %v", vector.Drift())
	}
}
