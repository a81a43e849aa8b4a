package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON 从大模型返回的文本中恢复一个JSON对象并反序列化到 out。
// 依次尝试：直接解析、```json 代码块、最外层花括号之间的子串。
// 三种方式都失败时返回错误。
func ExtractJSON(content string, out interface{}) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("empty content")
	}

	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}

	if block, ok := fencedBlock(trimmed); ok {
		if err := json.Unmarshal([]byte(block), out); err == nil {
			return nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no json object found in content")
	}

	if err := json.Unmarshal([]byte(trimmed[start:end+1]), out); err != nil {
		return fmt.Errorf("parse brace-delimited json: %w", err)
	}
	return nil
}

func fencedBlock(content string) (string, bool) {
	marker := "```json"
	idx := strings.Index(content, marker)
	if idx == -1 {
		marker = "```"
		idx = strings.Index(content, marker)
	}
	if idx == -1 {
		return "", false
	}

	rest := content[idx+len(marker):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
