package knowledge

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/liuxinyu/starlight/backend/pkg/utils"
)

// AllowedNodeTypes 是实体抽取允许的节点类型白名单。
var AllowedNodeTypes = []string{
	"User", "Idol", "Preference", "Event", "Emotion", "Topic",
	"Location", "Activity", "Person", "Concept",
}

// AllowedRelationshipTypes 是实体抽取允许的关系类型白名单。
var AllowedRelationshipTypes = []string{
	"LIKES", "DISLIKES", "MENTIONS", "DISCUSSES",
	"CAUSES", "EXPRESSES", "PARTICIPATES_IN",
	"LOCATED_IN", "RELATED_TO", "WANTS_TO_DO",
	"DID", "PLANNED_TO", "FEELS_ABOUT",
}

type extractionPayload struct {
	Entities []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"entities"`
	Relationships []struct {
		Source string  `json:"source"`
		Target string  `json:"target"`
		Type   string  `json:"type"`
		Weight float64 `json:"weight"`
	} `json:"relationships"`
}

// Updater 用大模型从对话中抽取实体与关系并写入图谱。
type Updater struct {
	graph     *Graph
	extractor compose.Runnable[map[string]any, *schema.Message]
}

// NewUpdater 创建知识更新器。chatModel 复用主模型实例。
func NewUpdater(ctx context.Context, graph *Graph, chatModel model.ChatModel) (*Updater, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(extractionSystemPrompt),
		schema.UserMessage(extractionUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile extraction chain: %w", err)
	}

	return &Updater{graph: graph, extractor: runnable}, nil
}

// UpdateFromDialogue 抽取一轮对话中的实体与关系并持久化。
// 抽取或写入失败以错误返回，调用方记入诊断而不中断回合。
func (u *Updater) UpdateFromDialogue(ctx context.Context, dialogue, sessionID string) (Stats, error) {
	input := map[string]any{
		"dialogue":              dialogue,
		"allowed_nodes":         strings.Join(AllowedNodeTypes, ", "),
		"allowed_relationships": strings.Join(AllowedRelationshipTypes, ", "),
	}

	msg, err := u.extractor.Invoke(ctx, input)
	if err != nil {
		return Stats{}, fmt.Errorf("invoke extraction chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return Stats{}, fmt.Errorf("extraction returned empty content")
	}

	payload := extractionPayload{}
	if err := utils.ExtractJSON(msg.Content, &payload); err != nil {
		return Stats{}, fmt.Errorf("parse extraction output: %w", err)
	}

	stats, err := u.graph.persistExtraction(ctx, sessionID, payload)
	if err != nil {
		return stats, err
	}

	log.Printf("[knowledge] session=%s stored %d nodes, %d relationships",
		sessionID, stats.NodesCreated, stats.RelationshipsCreated)
	return stats, nil
}

// normalizeNodeType 将节点类型收敛到白名单，未知类型落到 Concept。
func normalizeNodeType(raw string) string {
	for _, allowed := range AllowedNodeTypes {
		if strings.EqualFold(strings.TrimSpace(raw), allowed) {
			return allowed
		}
	}
	return "Concept"
}

// normalizeRelationshipType 将关系类型收敛到白名单，未知类型落到 RELATED_TO。
// 关系类型会被拼入 Cypher，因此必须经过这里。
func normalizeRelationshipType(raw string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_"))
	for _, allowed := range AllowedRelationshipTypes {
		if normalized == allowed {
			return allowed
		}
	}
	return "RELATED_TO"
}

const extractionSystemPrompt = "你是一名知识图谱抽取助手。从给定的对话中识别实体（人名、地名、事物、偏好、事件、情感等）" +
	"和实体之间的关系。只返回一个 JSON 对象，字段如下：entities (数组，每项含 name/type/description 三个字符串字段)、" +
	"relationships (数组，每项含 source/target/type 字符串字段和 weight 数字字段，weight 为 0~1 之间的小数)。" +
	"实体类型和关系类型必须从给定的参考列表中选择。不得输出多余文本。"

const extractionUserPrompt = "对话内容：\n{dialogue}\n\n节点类型参考：{allowed_nodes}\n关系类型参考：{allowed_relationships}\n\n请基于对话给出 JSON。"
