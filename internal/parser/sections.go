package parser

import (
	"regexp"
	"strings"

	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/internal/types"
)

const (
	// 标题行的最大长度，超过则视为正文
	maxHeaderLength = 50
	// 章节内容总量低于该值时认为切分失败，整份文本放入 OTHER
	minSectionedContent = 500
	// OTHER 兜底时保留的最大字符数
	maxFallbackContent = 5000
)

type headerPattern struct {
	section types.SectionName
	re      *regexp.Regexp
}

// 匹配归一化后的整行；允许 "skills and interests" 这类复合标题
var headerPatterns = []headerPattern{
	{types.SectionExperience, regexp.MustCompile(`^((professional|work|relevant) )?experience$|^work history$|^employment( history)?$`)},
	{types.SectionProjects, regexp.MustCompile(`^((personal|selected|academic|key) )?projects?$|^portfolio$`)},
	{types.SectionSkills, regexp.MustCompile(`^(technical )?skills?$|^technologies$|^expertise$|^tech stack$`)},
	{types.SectionEducation, regexp.MustCompile(`^education$|^academic( background)?$|^qualifications$`)},
	{types.SectionSummary, regexp.MustCompile(`^((professional|career) )?summary$|^about( me)?$|^profile$|^objective$`)},
}

var compoundSuffix = regexp.MustCompile(` and [a-z]+( [a-z]+)?$`)

// matchHeader 判断一行是否为章节标题
func matchHeader(line string) (types.SectionName, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) >= maxHeaderLength {
		return "", false
	}
	norm := textproc.Normalize(trimmed)
	if norm == "" {
		return "", false
	}
	candidates := []string{norm}
	if stripped := compoundSuffix.ReplaceAllString(norm, ""); stripped != norm {
		candidates = append(candidates, stripped)
	}
	for _, candidate := range candidates {
		for _, hp := range headerPatterns {
			if hp.re.MatchString(candidate) {
				return hp.section, true
			}
		}
	}
	return "", false
}

// ExtractSections 按标题行把简历文本切分为章节。
// 第一个标题之前的内容归入 OTHER；章节内容过少时整份文本作为 OTHER。
func ExtractSections(text string) types.Sections {
	sections := types.Sections{}
	if strings.TrimSpace(text) == "" {
		return sections
	}

	buffers := make(map[types.SectionName][]string)
	current := types.SectionOther
	for _, line := range strings.Split(text, "\n") {
		if name, ok := matchHeader(line); ok {
			current = name
			continue
		}
		if strings.TrimSpace(line) == "" {
			// 保留段落间的空行，便于后续按段落定位
			if n := len(buffers[current]); n > 0 && buffers[current][n-1] != "" {
				buffers[current] = append(buffers[current], "")
			}
			continue
		}
		buffers[current] = append(buffers[current], strings.TrimRight(line, " \t\r"))
	}

	for name, lines := range buffers {
		content := strings.TrimSpace(strings.Join(lines, "\n"))
		if content != "" {
			sections[name] = content
		}
	}

	if sections.TotalLength() < minSectionedContent {
		sections[types.SectionOther] = textproc.TruncateRunes(strings.TrimSpace(text), maxFallbackContent)
	}
	return sections
}
