package textproc

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"portfolio-agent-go/pkg/utils"
)

// Normalize 小写化、去掉标点并压缩空白。
// 任何非字母数字字符都被视为分隔符，因此 "What's" 会变成 "what s"。
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Tokenize 返回归一化后的单词序列
func Tokenize(text string) []string {
	norm := Normalize(text)
	if norm == "" {
		return nil
	}
	return strings.Fields(norm)
}

// WordSet 返回单词集合
func WordSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Jaccard 计算两个单词集合的 Jaccard 系数，两个空集合返回 0
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Similarity 对两段文本做归一化后计算 Jaccard 系数
func Similarity(a, b string) float64 {
	return Jaccard(WordSet(a), WordSet(b))
}

// Fingerprint 返回归一化问题的 MD5 十六进制串，空问题返回空串
func Fingerprint(text string) string {
	norm := Normalize(text)
	if norm == "" {
		return ""
	}
	return utils.CalculateMD5([]byte(norm))
}

// ContainsPhrase 判断归一化文本中是否以完整单词的形式包含短语。
// 两个参数都应当已经归一化。
func ContainsPhrase(normText, normPhrase string) bool {
	if normText == "" || normPhrase == "" {
		return false
	}
	return strings.Contains(" "+normText+" ", " "+normPhrase+" ")
}

// HasWordPrefix 判断文本中是否有单词以 prefix 开头，例如 "skill" 命中 "skills"
func HasWordPrefix(tokens []string, prefix string) bool {
	for _, t := range tokens {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// RuneLen 返回字符数
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// TruncateRunes 按字符截断，保证结果不超过 max 个字符
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// TruncateWithSuffix 超出 max 个字符时截断并追加后缀，结果总长度不超过 max
func TruncateWithSuffix(s string, max int, suffix string) string {
	if RuneLen(s) <= max {
		return s
	}
	keep := max - RuneLen(suffix)
	if keep <= 0 {
		return TruncateRunes(s, max)
	}
	return TruncateRunes(s, keep) + suffix
}

// CountWords 统计以空白分隔的单词数
func CountWords(s string) int {
	return len(strings.Fields(s))
}
