package textproc

import (
	"regexp"
	"strings"
)

var (
	hrefPattern     = regexp.MustCompile(`\\href\{([^}]+)\}\{([^}]+)\}`)
	latexWrapped    = regexp.MustCompile(`\\(?:section|subsection|textbf|textit|emph|underline|texttt)\*?\{([^}]*)\}`)
	latexItem       = regexp.MustCompile(`\\item\s+`)
	latexCommand    = regexp.MustCompile(`\\[a-zA-Z]+\*?`)
	inlineSpaces    = regexp.MustCompile(`[ \t]+`)
	spaceAroundLine = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	manyBlankLines  = regexp.MustCompile(`\n{3,}`)
	pageNumberLine  = regexp.MustCompile(`(?m)^\d+\s*$`)
	pageOfPattern   = regexp.MustCompile(`Page \d+ of \d+`)
)

// CleanLatex 去掉 LaTeX 排版命令，保留正文和行结构。
// \href{url}{text} 会被改写为 "text (url)"，以便后续提取链接。
func CleanLatex(text string) string {
	if text == "" {
		return ""
	}
	text = hrefPattern.ReplaceAllString(text, "$2 ($1)")
	// 嵌套命令需要多轮展开
	for i := 0; i < 3; i++ {
		next := latexWrapped.ReplaceAllString(text, "$1")
		if next == text {
			break
		}
		text = next
	}
	text = latexItem.ReplaceAllString(text, "")
	text = latexCommand.ReplaceAllString(text, "")
	text = strings.NewReplacer("{", "", "}", "", `\`, "").Replace(text)

	text = NormalizeWhitespace(text)
	text = pageOfPattern.ReplaceAllString(text, "")
	text = pageNumberLine.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// NormalizeWhitespace 压缩连续空格并把三个以上的换行合并为一个空行
func NormalizeWhitespace(text string) string {
	if text == "" {
		return ""
	}
	text = inlineSpaces.ReplaceAllString(text, " ")
	text = manyBlankLines.ReplaceAllString(spaceAroundLine.ReplaceAllString(text, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
