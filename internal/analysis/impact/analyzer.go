package impact

import (
	"strings"

	"github.com/liuxinyu/starlight/backend/internal/model/personality"
)

// Emotion 表示用户输入的情感极性。
type Emotion string

const (
	Positive Emotion = "positive"
	Neutral  Emotion = "neutral"
	Negative Emotion = "negative"
)

// MaxImpact 是单个维度影响值的上限。
const MaxImpact = 0.2

// Analysis 是一次用户输入分析的结果：情感极性、话题类型以及对各性格维度的影响。
type Analysis struct {
	UserEmotion Emotion                       `json:"user_emotion"`
	TopicType   string                        `json:"topic_type"`
	Impact      map[personality.Trait]float64 `json:"personality_impact"`
}

var positiveKeywords = []string{
	"开心", "高兴", "喜欢", "爱", "棒", "好", "谢谢", "哈哈", "😊", "😄",
}

var negativeKeywords = []string{
	"难过", "伤心", "不喜欢", "讨厌", "不好", "累", "烦", "😢", "😞",
}

// topicBuckets 按固定优先级排列，同分时前面的话题胜出。
var topicBuckets = []struct {
	topic    string
	keywords []string
}{
	{"music", []string{"音乐", "歌", "歌手", "乐队", "摇滚", "流行"}},
	{"life", []string{"生活", "工作", "学习", "天气", "今天"}},
	{"emotion", []string{"心情", "感觉", "开心", "难过", "高兴"}},
	{"food", []string{"吃", "美食", "料理", "菜", "饭"}},
	{"travel", []string{"旅行", "去", "玩", "地方", "景点"}},
}

// Analyze 是确定性的规则分析：关键词计数定极性与话题，固定常量累加出影响值。
// 作为 LLM 分析不可用或输出不可解析时的回退策略。
func Analyze(userInput string) Analysis {
	normalized := strings.ToLower(userInput)

	positiveCount := countMatches(normalized, positiveKeywords)
	negativeCount := countMatches(normalized, negativeKeywords)

	emotion := Neutral
	if positiveCount > negativeCount {
		emotion = Positive
	} else if negativeCount > positiveCount {
		emotion = Negative
	}

	topic := "other"
	maxMatches := 0
	for _, bucket := range topicBuckets {
		matches := countMatches(normalized, bucket.keywords)
		if matches > maxMatches {
			maxMatches = matches
			topic = bucket.topic
		}
	}

	impact := map[personality.Trait]float64{
		personality.Cheerfulness: 0,
		personality.Gentleness:   0,
		personality.Energy:       0,
		personality.Curiosity:    0,
		personality.Empathy:      0,
	}

	switch emotion {
	case Positive:
		impact[personality.Cheerfulness] += 0.1
		impact[personality.Energy] += 0.05
	case Negative:
		impact[personality.Empathy] += 0.15
		impact[personality.Gentleness] += 0.1
		impact[personality.Cheerfulness] -= 0.05
	}

	switch topic {
	case "music":
		impact[personality.Energy] += 0.05
		impact[personality.Curiosity] += 0.05
	case "emotion":
		impact[personality.Empathy] += 0.1
		impact[personality.Gentleness] += 0.05
	case "travel":
		impact[personality.Curiosity] += 0.1
		impact[personality.Energy] += 0.05
	}

	for trait, val := range impact {
		impact[trait] = Clamp(val)
	}

	return Analysis{
		UserEmotion: emotion,
		TopicType:   topic,
		Impact:      impact,
	}
}

// Clamp 将单个影响值限制到 [-MaxImpact, MaxImpact]。
func Clamp(val float64) float64 {
	if val < -MaxImpact {
		return -MaxImpact
	}
	if val > MaxImpact {
		return MaxImpact
	}
	return val
}

func countMatches(text string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			count++
		}
	}
	return count
}
