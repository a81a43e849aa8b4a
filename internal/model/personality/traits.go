package personality

import (
	"math"
	"sort"
	"time"
)

// Trait 标识性格向量中的一个维度。
type Trait string

const (
	Cheerfulness Trait = "cheerfulness" // 开朗度
	Gentleness   Trait = "gentleness"   // 温柔度
	Energy       Trait = "energy"       // 元气值
	Curiosity    Trait = "curiosity"    // 好奇心
	Empathy      Trait = "empathy"      // 同理心
)

// Order 是固定的维度顺序，也用于主导特质的同分裁决。
var Order = []Trait{Cheerfulness, Gentleness, Energy, Curiosity, Empathy}

// defaultBaseline 用于基础人设缺失某个维度时的兜底值。
const defaultBaseline = 0.5

// HistoryEntry 记录一次状态更新：时间戳、请求的变化量以及更新前的快照。
type HistoryEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Delta     map[Trait]float64 `json:"delta"`
	Prior     map[Trait]float64 `json:"prior"`
}

// Vector 维护一条会话的有界性格状态。
// 每次更新的单维变化先被钳制到 ±evolutionRate，
// 再被钳制到 [baseline-maxDrift, baseline+maxDrift] ∩ [0,1]。
// Vector 不做内部加锁，同一会话的调用方需要自行串行化。
type Vector struct {
	values        map[Trait]float64
	baseline      map[Trait]float64
	evolutionRate float64
	maxDrift      float64
	updateCount   int
	history       []HistoryEntry
}

// New 从基础人设创建性格向量，缺失维度取 0.5。
func New(baseline map[Trait]float64, evolutionRate, maxDrift float64) *Vector {
	base := make(map[Trait]float64, len(Order))
	values := make(map[Trait]float64, len(Order))
	for _, trait := range Order {
		v, ok := baseline[trait]
		if !ok {
			v = defaultBaseline
		}
		v = clamp(v, 0, 1)
		base[trait] = v
		values[trait] = v
	}

	return &Vector{
		values:        values,
		baseline:      base,
		evolutionRate: evolutionRate,
		maxDrift:      maxDrift,
	}
}

// Apply 应用一次更新。未知维度被忽略；空 delta 同样计为一次更新并写入历史。
func (v *Vector) Apply(delta map[Trait]float64) {
	v.history = append(v.history, HistoryEntry{
		Timestamp: time.Now().UTC(),
		Delta:     copyDelta(delta),
		Prior:     v.Snapshot(),
	})

	for trait, change := range delta {
		current, ok := v.values[trait]
		if !ok {
			continue
		}

		change = clamp(change, -v.evolutionRate, v.evolutionRate)

		base := v.baseline[trait]
		lo := math.Max(0, base-v.maxDrift)
		hi := math.Min(1, base+v.maxDrift)
		v.values[trait] = clamp(current+change, lo, hi)
	}

	v.updateCount++
}

// Snapshot 返回当前各维度取值的副本。
func (v *Vector) Snapshot() map[Trait]float64 {
	out := make(map[Trait]float64, len(v.values))
	for trait, val := range v.values {
		out[trait] = val
	}
	return out
}

// Baseline 返回基础人设的副本。
func (v *Vector) Baseline() map[Trait]float64 {
	out := make(map[Trait]float64, len(v.baseline))
	for trait, val := range v.baseline {
		out[trait] = val
	}
	return out
}

// Drift 返回各维度相对基础值的偏移。
func (v *Vector) Drift() map[Trait]float64 {
	out := make(map[Trait]float64, len(v.values))
	for trait, val := range v.values {
		out[trait] = val - v.baseline[trait]
	}
	return out
}

// UpdateCount 返回累计更新次数。
func (v *Vector) UpdateCount() int {
	return v.updateCount
}

// History 返回更新历史的副本。
func (v *Vector) History() []HistoryEntry {
	out := make([]HistoryEntry, len(v.history))
	copy(out, v.history)
	return out
}

// IsWithinBounds 报告所有维度是否仍满足漂移不变量。
// 按构造恒为 true，仅用于诊断与测试。
func (v *Vector) IsWithinBounds() bool {
	for _, trait := range Order {
		if math.Abs(v.values[trait]-v.baseline[trait]) > v.maxDrift+1e-9 {
			return false
		}
	}
	return true
}

// Reset 硬重置回基础人设。
func (v *Vector) Reset() {
	delta := make(map[Trait]float64, len(Order))
	for _, trait := range Order {
		delta[trait] = 0
	}
	v.history = append(v.history, HistoryEntry{
		Timestamp: time.Now().UTC(),
		Delta:     delta,
		Prior:     v.Snapshot(),
	})
	for _, trait := range Order {
		v.values[trait] = v.baseline[trait]
	}
	v.updateCount++
}

// SoftReset 将每个维度向基础值回调一半，走通常的钳制更新路径。
func (v *Vector) SoftReset() {
	delta := make(map[Trait]float64, len(Order))
	for _, trait := range Order {
		delta[trait] = (v.baseline[trait] - v.values[trait]) * 0.5
	}
	v.Apply(delta)
}

// DominantTraits 返回当前取值最高的 n 个维度，同分时按固定维度顺序。
func (v *Vector) DominantTraits(n int) []Trait {
	traits := make([]Trait, len(Order))
	copy(traits, Order)

	rank := make(map[Trait]int, len(Order))
	for i, trait := range Order {
		rank[trait] = i
	}

	sort.SliceStable(traits, func(i, j int) bool {
		a, b := v.values[traits[i]], v.values[traits[j]]
		if a != b {
			return a > b
		}
		return rank[traits[i]] < rank[traits[j]]
	})

	if n > len(traits) {
		n = len(traits)
	}
	if n < 0 {
		n = 0
	}
	return traits[:n]
}

func copyDelta(delta map[Trait]float64) map[Trait]float64 {
	out := make(map[Trait]float64, len(delta))
	for trait, val := range delta {
		out[trait] = val
	}
	return out
}

func clamp(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
