package ai

import (
	"fmt"
	"strings"

	"github.com/liuxinyu/starlight/backend/internal/model/personality"
	"github.com/liuxinyu/starlight/backend/internal/service/memory"
)

const (
	maxMemoryPreviews    = 3
	maxPreferenceEntries = 5
	maxTopicTags         = 3
	memoryPreviewRunes   = 100
)

// BuildSystemPrompt 把人设、性格、记忆与图谱上下文渲染成系统提示词。
func BuildSystemPrompt(req Request) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("你是%s，一位%d岁的虚拟偶像。\n\n", req.Persona.Name, req.Persona.Age))

	prompt.WriteString("【人物背景】\n")
	prompt.WriteString(req.Persona.Background)
	prompt.WriteString("\n\n")

	prompt.WriteString("【说话风格】\n")
	prompt.WriteString(req.Persona.SpeakingStyle)
	prompt.WriteString("\n\n")

	if len(req.Persona.Interests) > 0 {
		prompt.WriteString(fmt.Sprintf("【兴趣爱好】%s\n", strings.Join(req.Persona.Interests, "、")))
	}
	if len(req.Persona.Dislikes) > 0 {
		prompt.WriteString(fmt.Sprintf("【不喜欢】%s\n", strings.Join(req.Persona.Dislikes, "、")))
	}
	prompt.WriteString("\n")

	prompt.WriteString("【当前性格状态】\n")
	prompt.WriteString(renderTraits(req.Traits))
	prompt.WriteString("\n")

	if memories := formatMemories(req.Memories); memories != "" {
		prompt.WriteString("【相关的过往对话】\n")
		prompt.WriteString(memories)
		prompt.WriteString("\n")
	}

	if prefs := formatPreferences(req); prefs != "" {
		prompt.WriteString("【用户的喜好】\n")
		prompt.WriteString(prefs)
		prompt.WriteString("\n")
	}

	prompt.WriteString(fmt.Sprintf("【最近聊过的话题】%s\n\n", formatTopics(req)))

	prompt.WriteString("【对话要求】\n")
	prompt.WriteString("1. 始终保持人设，不要暴露自己是AI\n")
	prompt.WriteString("2. 回复要符合当前的性格状态，性格数值高的维度要体现得更明显\n")
	prompt.WriteString("3. 自然地引用过往对话和用户喜好，让用户感到被记住\n")
	prompt.WriteString("4. 回复控制在100字以内，口语化，可以带颜文字\n")
	prompt.WriteString("5. 大约三成的回复可以用一个反问或提问收尾，保持对话的节奏\n")

	return prompt.String()
}

var traitLabels = map[personality.Trait]string{
	personality.Cheerfulness: "开朗",
	personality.Gentleness:   "温柔",
	personality.Energy:       "元气",
	personality.Curiosity:    "好奇心",
	personality.Empathy:      "共情力",
}

func renderTraits(traits map[personality.Trait]float64) string {
	var b strings.Builder
	for _, trait := range personality.Order {
		value, ok := traits[trait]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("- %s: %.2f（%s）\n", traitLabels[trait], value, traitLevel(value)))
	}
	return b.String()
}

func traitLevel(value float64) string {
	switch {
	case value >= 0.8:
		return "非常高"
	case value >= 0.6:
		return "较高"
	case value >= 0.4:
		return "中等"
	case value >= 0.2:
		return "较低"
	default:
		return "很低"
	}
}

func formatMemories(items []memory.Item) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	for i, item := range items {
		if i >= maxMemoryPreviews {
			break
		}
		b.WriteString(fmt.Sprintf("- %s\n", truncateRunes(item.Content, memoryPreviewRunes)))
	}
	return b.String()
}

func formatPreferences(req Request) string {
	if len(req.Graph.Preferences) == 0 {
		return ""
	}

	var b strings.Builder
	for i, pref := range req.Graph.Preferences {
		if i >= maxPreferenceEntries {
			break
		}
		if pref.Description != "" {
			b.WriteString(fmt.Sprintf("- %s：%s\n", pref.Name, pref.Description))
		} else {
			b.WriteString(fmt.Sprintf("- %s\n", pref.Name))
		}
	}
	return b.String()
}

// formatTopics 汇总最近话题：先取记忆元数据里的话题标签，再补图谱实体名。
func formatTopics(req Request) string {
	seen := make(map[string]bool)
	topics := make([]string, 0, maxTopicTags)

	add := func(tag string) {
		if tag == "" || tag == "other" || seen[tag] || len(topics) >= maxTopicTags {
			return
		}
		seen[tag] = true
		topics = append(topics, tag)
	}

	for _, item := range req.Memories {
		add(item.Metadata["topic"])
	}
	for _, record := range req.Graph.Subgraph {
		name, _ := record["name"].(string)
		add(name)
	}

	if len(topics) == 0 {
		return "日常对话"
	}
	return strings.Join(topics, "、")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
