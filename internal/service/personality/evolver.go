package personality

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/liuxinyu/starlight/backend/internal/analysis/impact"
	personalitymodel "github.com/liuxinyu/starlight/backend/internal/model/personality"
	"github.com/liuxinyu/starlight/backend/pkg/utils"
)

// Analyzer 分析用户输入对性格的影响。两个实现：LLM 分析与规则回退，
// 二者只按主策略是否成功选择，从不合并。
type Analyzer interface {
	Analyze(ctx context.Context, userInput string, snapshot map[personalitymodel.Trait]float64) (impact.Analysis, error)
}

// Evolver 按分析结果推进会话的性格状态。
type Evolver struct {
	primary  Analyzer // 可为 nil，此时直接走回退
	fallback Analyzer
}

// NewEvolver 创建性格进化器。chatModel 为 nil 或 enabled 为 false 时只用规则分析。
func NewEvolver(ctx context.Context, chatModel model.ChatModel, enabled bool) (*Evolver, error) {
	evolver := &Evolver{fallback: ruleAnalyzer{}}

	if !enabled || chatModel == nil {
		return evolver, nil
	}

	primary, err := newLLMAnalyzer(ctx, chatModel)
	if err != nil {
		return nil, err
	}
	evolver.primary = primary
	return evolver, nil
}

// Evolve 分析输入并将影响施加到性格向量，返回采用的分析结果。
// 主策略失败时回退到规则分析，因此本方法总能完成一次更新。
func (e *Evolver) Evolve(ctx context.Context, userInput string, vector *personalitymodel.Vector) (impact.Analysis, error) {
	analysis := e.analyze(ctx, userInput, vector.Snapshot())
	vector.Apply(analysis.Impact)
	return analysis, nil
}

func (e *Evolver) analyze(ctx context.Context, userInput string, snapshot map[personalitymodel.Trait]float64) impact.Analysis {
	if e.primary != nil {
		analysis, err := e.primary.Analyze(ctx, userInput, snapshot)
		if err == nil {
			return analysis
		}
		log.Printf("[personality] llm analysis failed, using rule fallback: %v", err)
	}

	analysis, _ := e.fallback.Analyze(ctx, userInput, snapshot)
	return analysis
}

// ruleAnalyzer 将确定性规则分析适配到 Analyzer 接口。
type ruleAnalyzer struct{}

func (ruleAnalyzer) Analyze(_ context.Context, userInput string, _ map[personalitymodel.Trait]float64) (impact.Analysis, error) {
	return impact.Analyze(userInput), nil
}

// llmAnalyzer 用大模型做结构化性格影响分析。
type llmAnalyzer struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

func newLLMAnalyzer(ctx context.Context, chatModel model.ChatModel) (*llmAnalyzer, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(analysisSystemPrompt),
		schema.UserMessage(analysisUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile personality analysis chain: %w", err)
	}

	return &llmAnalyzer{chain: runnable}, nil
}

func (a *llmAnalyzer) Analyze(ctx context.Context, userInput string, snapshot map[personalitymodel.Trait]float64) (impact.Analysis, error) {
	input := map[string]any{
		"user_input":   strings.TrimSpace(userInput),
		"cheerfulness": fmt.Sprintf("%.2f", snapshot[personalitymodel.Cheerfulness]),
		"gentleness":   fmt.Sprintf("%.2f", snapshot[personalitymodel.Gentleness]),
		"energy":       fmt.Sprintf("%.2f", snapshot[personalitymodel.Energy]),
		"curiosity":    fmt.Sprintf("%.2f", snapshot[personalitymodel.Curiosity]),
		"empathy":      fmt.Sprintf("%.2f", snapshot[personalitymodel.Empathy]),
	}

	msg, err := a.chain.Invoke(ctx, input)
	if err != nil {
		return impact.Analysis{}, fmt.Errorf("invoke analysis chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return impact.Analysis{}, fmt.Errorf("analysis returned empty content")
	}

	payload := impact.Analysis{}
	if err := utils.ExtractJSON(msg.Content, &payload); err != nil {
		return impact.Analysis{}, fmt.Errorf("parse analysis output: %w", err)
	}
	if payload.Impact == nil {
		return impact.Analysis{}, fmt.Errorf("analysis output missing personality_impact")
	}

	// 模型输出的影响值仍需钳制到约定范围。
	for trait, val := range payload.Impact {
		payload.Impact[trait] = impact.Clamp(val)
	}

	return payload, nil
}

const analysisSystemPrompt = "你是性格影响分析师。分析用户输入对虚拟偶像性格的影响。" +
	"只返回一个 JSON 对象，字段：user_emotion (positive/neutral/negative)、" +
	"topic_type (music/life/emotion/food/travel/other)、" +
	"personality_impact (对 cheerfulness/gentleness/energy/curiosity/empathy 五个维度各给出 -0.2 到 0.2 之间的数值，" +
	"负值表示降低，正值表示提升，0 表示无明显影响)。不得输出多余文本。"

const analysisUserPrompt = "用户输入：{user_input}\n\n偶像当前性格：\n" +
	"- 开朗度：{cheerfulness}\n- 温柔度：{gentleness}\n- 元气值：{energy}\n" +
	"- 好奇心：{curiosity}\n- 同理心：{empathy}\n\n请基于这些信息给出 JSON。"
