package personality

import (
	"math"
	"testing"
)

func baseline() map[Trait]float64 {
	return map[Trait]float64{
		Cheerfulness: 0.8,
		Gentleness:   0.6,
		Energy:       0.9,
		Curiosity:    0.7,
		Empathy:      0.5,
	}
}

func TestApplyClampsPerUpdateDelta(t *testing.T) {
	v := New(baseline(), 0.05, 0.2)

	v.Apply(map[Trait]float64{Cheerfulness: 0.5})

	got := v.Snapshot()[Cheerfulness]
	want := 0.85
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v after clamped update, got %v", want, got)
	}
}

func TestThreeClampedUpdatesFromBaseline(t *testing.T) {
	v := New(baseline(), 0.05, 0.2)

	// 三次 +0.1 请求各被钳到 +0.05：0.8 → 0.85 → 0.9 → 0.95。
	for i := 0; i < 3; i++ {
		v.Apply(map[Trait]float64{Cheerfulness: 0.1})
	}

	got := v.Snapshot()[Cheerfulness]
	if math.Abs(got-0.95) > 1e-9 {
		t.Fatalf("expected 0.95 after three clamped updates, got %v", got)
	}
	if v.UpdateCount() != 3 {
		t.Fatalf("expected 3 updates, got %d", v.UpdateCount())
	}
}

func TestApplyRespectsDriftBound(t *testing.T) {
	v := New(baseline(), 0.05, 0.2)

	// 连续正向更新，最终应停在 baseline+maxDrift 而不是 1.0。
	for i := 0; i < 20; i++ {
		v.Apply(map[Trait]float64{Gentleness: 0.05})
	}

	got := v.Snapshot()[Gentleness]
	want := 0.8
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected drift ceiling %v, got %v", want, got)
	}
	if !v.IsWithinBounds() {
		t.Fatal("vector should stay within bounds after repeated updates")
	}
}

func TestDriftBoundIntersectsUnitInterval(t *testing.T) {
	v := New(map[Trait]float64{Energy: 0.95}, 0.05, 0.2)

	for i := 0; i < 10; i++ {
		v.Apply(map[Trait]float64{Energy: 0.05})
	}

	if got := v.Snapshot()[Energy]; got > 1.0 {
		t.Fatalf("trait exceeded 1.0: %v", got)
	}
}

func TestEmptyDeltaStillCountsAsUpdate(t *testing.T) {
	v := New(baseline(), 0.05, 0.2)

	v.Apply(nil)
	v.Apply(map[Trait]float64{})

	if got := v.UpdateCount(); got != 2 {
		t.Fatalf("expected update count 2, got %d", got)
	}
	if got := len(v.History()); got != 2 {
		t.Fatalf("expected 2 history entries, got %d", got)
	}
	if got := v.Snapshot()[Cheerfulness]; got != 0.8 {
		t.Fatalf("empty delta must not change values, got %v", got)
	}
}

func TestApplyIgnoresUnknownTraits(t *testing.T) {
	v := New(baseline(), 0.05, 0.2)

	v.Apply(map[Trait]float64{Trait("confidence"): 0.5})

	snapshot := v.Snapshot()
	if _, ok := snapshot[Trait("confidence")]; ok {
		t.Fatal("unknown trait must not be added to the vector")
	}
	if got := v.UpdateCount(); got != 1 {
		t.Fatalf("expected update count 1, got %d", got)
	}
}

func TestMissingBaselineDimensionDefaults(t *testing.T) {
	v := New(map[Trait]float64{Cheerfulness: 0.8}, 0.05, 0.2)

	if got := v.Snapshot()[Empathy]; got != 0.5 {
		t.Fatalf("missing dimension should default to 0.5, got %v", got)
	}
}

func TestResetRestoresBaseline(t *testing.T) {
	v := New(baseline(), 0.05, 0.2)
	v.Apply(map[Trait]float64{Cheerfulness: 0.05, Empathy: -0.05})

	v.Reset()

	for trait, want := range baseline() {
		if got := v.Snapshot()[trait]; math.Abs(got-want) > 1e-9 {
			t.Fatalf("trait %s: expected baseline %v, got %v", trait, want, got)
		}
	}
}

func TestSoftResetConvergesToBaseline(t *testing.T) {
	v := New(baseline(), 0.05, 0.2)
	for i := 0; i < 4; i++ {
		v.Apply(map[Trait]float64{Empathy: 0.05})
	}

	prev := math.Abs(v.Snapshot()[Empathy] - 0.5)
	for i := 0; i < 30; i++ {
		v.SoftReset()
		dist := math.Abs(v.Snapshot()[Empathy] - 0.5)
		if dist > prev+1e-9 {
			t.Fatalf("soft reset moved away from baseline: %v -> %v", prev, dist)
		}
		prev = dist
	}

	if prev > 1e-3 {
		t.Fatalf("expected convergence to baseline, still %v away", prev)
	}
}

func TestHistoryRecordsPriorValues(t *testing.T) {
	v := New(baseline(), 0.05, 0.2)

	v.Apply(map[Trait]float64{Cheerfulness: 0.05})
	v.Apply(map[Trait]float64{Cheerfulness: 0.05})

	history := v.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if got := history[0].Prior[Cheerfulness]; math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("first entry should record pre-update value 0.8, got %v", got)
	}
	if got := history[1].Prior[Cheerfulness]; math.Abs(got-0.85) > 1e-9 {
		t.Fatalf("second entry should record pre-update value 0.85, got %v", got)
	}
}

func TestDominantTraits(t *testing.T) {
	v := New(baseline(), 0.05, 0.2)

	top := v.DominantTraits(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 traits, got %d", len(top))
	}
	if top[0] != Energy || top[1] != Cheerfulness {
		t.Fatalf("expected [energy cheerfulness], got %v", top)
	}
}

func TestDominantTraitsTieBreaksByOrder(t *testing.T) {
	v := New(map[Trait]float64{
		Cheerfulness: 0.5,
		Gentleness:   0.5,
		Energy:       0.5,
		Curiosity:    0.5,
		Empathy:      0.5,
	}, 0.05, 0.2)

	top := v.DominantTraits(2)
	if top[0] != Cheerfulness || top[1] != Gentleness {
		t.Fatalf("ties should follow canonical order, got %v", top)
	}
}
