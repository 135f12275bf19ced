// Package memory 实现相似问答缓存及其持久化。
package memory

import (
	"regexp"

	"portfolio-agent-go/internal/textproc"
)

// 作用于归一化后的问题文本
var broadPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(tell me about|what are|describe|summarize|give me|show me)\b`),
	regexp.MustCompile(`\b(yourself|your skills|your experience|your background|your resume)\b`),
	regexp.MustCompile(`\b(what tech|what stack|what languages|what technologies)\b`),
	regexp.MustCompile(`^(who are you|introduce yourself|walk me through)\b`),
}

// IsBroadQuestion 判断问题是否属于开放式的宽泛问题，例如 "tell me about yourself"。
// 宽泛问题在缓存中保留更久，匹配阈值也更低。
func IsBroadQuestion(question string) bool {
	norm := textproc.Normalize(question)
	if norm == "" {
		return false
	}
	for _, p := range broadPatterns {
		if p.MatchString(norm) {
			return true
		}
	}
	return false
}
