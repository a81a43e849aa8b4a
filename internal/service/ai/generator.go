package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/liuxinyu/starlight/backend/internal/analysis/intent"
	"github.com/liuxinyu/starlight/backend/internal/model/chat"
	"github.com/liuxinyu/starlight/backend/internal/model/persona"
	"github.com/liuxinyu/starlight/backend/internal/model/personality"
	"github.com/liuxinyu/starlight/backend/internal/service/knowledge"
	"github.com/liuxinyu/starlight/backend/internal/service/memory"
)

// FallbackReply 是生成失败时回给用户的固定回复。
const FallbackReply = "抱歉，我现在有点困惑... 能再说一遍吗？"

// Request 汇集一次响应生成所需的全部上下文。
type Request struct {
	Persona  persona.Persona
	Traits   map[personality.Trait]float64
	Memories []memory.Item
	Graph    knowledge.Context
	Intent   intent.Result
	History  []chat.Message
	Message  string
}

// Service 负责组装结构化提示词并调用聊天模型。
type Service struct {
	chatModel    model.ChatModel
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
	streaming    bool
}

// NewService 创建响应生成服务。
func NewService(ctx context.Context, chatModel model.ChatModel, historyLimit int, streaming bool) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile chat chain: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		chain:        runnable,
		historyLimit: historyLimit,
		streaming:    streaming,
	}, nil
}

// GetChatModel 返回底层的聊天模型，供其他服务复用。
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

// Generate 同步生成一条回复。
func (s *Service) Generate(ctx context.Context, req Request) (string, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(req))
	if err != nil {
		return "", fmt.Errorf("run chat chain: %w", err)
	}

	log.Printf("[ai] generated response persona=%s length=%d", req.Persona.ID, len(response.Content))
	return response.Content, nil
}

// Stream 流式生成回复片段。流式输出被配置关闭时退化为一次同步生成，
// 以单块流的形式返回，调用方无需感知差异。
func (s *Service) Stream(ctx context.Context, req Request) (*schema.StreamReader[*schema.Message], error) {
	if !s.streaming {
		response, err := s.chain.Invoke(ctx, s.buildChainInput(req))
		if err != nil {
			return nil, fmt.Errorf("run chat chain: %w", err)
		}
		return schema.StreamReaderFromArray([]*schema.Message{response}), nil
	}

	stream, err := s.chain.Stream(ctx, s.buildChainInput(req))
	if err != nil {
		return nil, fmt.Errorf("stream chat chain: %w", err)
	}
	return stream, nil
}

func (s *Service) buildChainInput(req Request) map[string]any {
	// 意图指导附加在用户消息之后，而不是系统提示里。
	query := req.Message
	if guidance := intent.Guidance(req.Intent); guidance != "" {
		query = req.Message + "\n\n" + guidance
	}

	return map[string]any{
		"system":  BuildSystemPrompt(req),
		"history": s.buildHistoryMessages(req.History),
		"query":   query,
	}
}

func (s *Service) buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if s.historyLimit > 0 && len(messages) > s.historyLimit {
		startIdx = len(messages) - s.historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case "user":
			history = append(history, schema.UserMessage(msg.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
