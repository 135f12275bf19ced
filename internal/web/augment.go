package web

import (
	"strings"

	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/internal/types"
)

// DefaultMinContext 上下文短于该字符数时尝试联网补充
const DefaultMinContext = 800

// 联网补充的触发原因
const (
	ReasonInsufficient    = "resume insufficient"
	ReasonProjectQuestion = "project-specific question"
)

// Plan 一次联网补充决策
type Plan struct {
	Search bool
	Query  string
	Reason string
}

// PlanAugmentation 根据当前上下文长度和问题决定是否联网搜索以及搜索词。
// minContext 小于等于 0 时使用 DefaultMinContext。
func PlanAugmentation(question, contextText string, sections types.Sections, links []string, minContext int) Plan {
	if minContext <= 0 {
		minContext = DefaultMinContext
	}
	projects := sections.Get(types.SectionProjects)

	if textproc.RuneLen(contextText) < minContext {
		count := 0
		for _, raw := range strings.Split(projects, "\n") {
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			if count++; count > 5 {
				break
			}
			if n := textproc.RuneLen(line); n > 10 && n < 60 && !strings.HasPrefix(line, "-") {
				return Plan{Search: true, Query: textproc.TruncateRunes(line, 40) + " github", Reason: ReasonInsufficient}
			}
		}
		for _, link := range links {
			if slug := textproc.GitHubRepoSlug(link); slug != "" {
				return Plan{Search: true, Query: slug, Reason: ReasonInsufficient}
			}
		}
		return Plan{Search: true, Query: "portfolio projects", Reason: ReasonInsufficient}
	}

	lower := strings.ToLower(question)
	if strings.Contains(lower, "github") || strings.Contains(lower, "repo") || strings.Contains(lower, "project") {
		lines := strings.Split(projects, "\n")
		if len(lines) > 3 {
			lines = lines[:3]
		}
		for _, line := range lines {
			if n := textproc.RuneLen(line); n > 10 && n < 50 {
				return Plan{Search: true, Query: strings.TrimSpace(line) + " project details", Reason: ReasonProjectQuestion}
			}
		}
	}
	return Plan{}
}
