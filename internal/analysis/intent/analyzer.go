package intent

import "strings"

// Type 表示用户话语的意图类别。
type Type string

const (
	Curiosity      Type = "curiosity"       // 对偶像本身好奇
	Sharing        Type = "sharing"         // 分享自己的感受
	SeekingComfort Type = "seeking_comfort" // 需要安慰
	Normal         Type = "normal"
)

// Result 是一次意图识别的输出。
type Result struct {
	Intent          Type `json:"intent"`
	IsQuestion      bool `json:"isQuestion"`
	PositiveEmotion bool `json:"positiveEmotion"`
	NegativeEmotion bool `json:"negativeEmotion"`
}

var curiosityKeywords = []string{
	"你是", "你的", "你叫", "你喜欢", "你爱", "你会",
	"多大", "几岁", "哪里人", "兴趣", "爱好",
	"介绍一下", "告诉我", "说说", "关于你",
}

var sharingKeywords = []string{
	"我也", "我也是", "我也是这样", "我也有",
	"我也是这么想", "我也有同感",
}

var questionKeywords = []string{
	"吗", "呢", "？", "?", "什么", "怎么", "如何", "为什么",
}

var positiveKeywords = []string{
	"开心", "高兴", "喜欢", "爱", "棒", "好", "谢谢",
	"哈哈", "嘿嘿", "嘻嘻", "😊", "😄", "🎉", "太棒了",
}

var negativeKeywords = []string{
	"难过", "伤心", "不喜欢", "讨厌", "不好", "累", "烦",
	"😢", "😞", "💔", "压力大", "不开心",
}

// Classify 识别用户意图。纯关键词匹配，无副作用。
// 类别优先级：curiosity > sharing > seeking_comfort > normal。
func Classify(userInput string) Result {
	result := Result{
		Intent:          Normal,
		IsQuestion:      containsAny(userInput, questionKeywords),
		PositiveEmotion: containsAny(userInput, positiveKeywords),
		NegativeEmotion: containsAny(userInput, negativeKeywords),
	}

	switch {
	case containsAny(userInput, curiosityKeywords):
		result.Intent = Curiosity
	case containsAny(userInput, sharingKeywords):
		result.Intent = Sharing
	case result.NegativeEmotion:
		result.Intent = SeekingComfort
	}

	return result
}

// Guidance 根据意图返回固定的回复指导模板，附加在用户消息之后。
func Guidance(result Result) string {
	switch result.Intent {
	case Curiosity:
		return `【提示：用户对你很好奇！】
- 可以主动分享更多关于自己的事情
- 介绍自己的兴趣、经历、梦想
- 分享一些小故事或趣事
- 不要只回答，可以主动延展话题`
	case Sharing:
		return `【提示：用户在分享感受！】
- 表达理解和共鸣
- 分享自己的相似经历
- 加深情感连接`
	case SeekingComfort:
		return `【提示：用户需要安慰！】
- 表现出同理心
- 温柔地安慰和鼓励
- 不要急着给建议，先倾听`
	}

	if result.IsQuestion {
		return `【提示：用户在提问！】
- 直接回答问题
- 可以适当反问，但不要每次都问
- 保持自然对话节奏`
	}

	return `【提示：正常对话】
- 自然回应
- 可以主动引入话题
- 不要每次都问问题`
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
