package rag

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/internal/types"
)

const (
	// DefaultBudget 上下文默认字符上限
	DefaultBudget = 6000
	// DefaultTruncationMarker 被截断的块末尾追加的标记
	DefaultTruncationMarker = "...[truncated]"

	blockSeparator    = "\n\n"
	supplementaryName = "SUPPLEMENTARY"
)

// 兜底顺序：分类出的章节都为空时依次尝试
var fallbackSections = []types.SectionName{
	types.SectionSummary,
	types.SectionSkills,
	types.SectionExperience,
	types.SectionProjects,
	types.SectionEducation,
	types.SectionOther,
}

// "Title - desc" / "Title | desc" 形式的项目标题行
var projectHeadingLine = regexp.MustCompile(`^[^\s\-*•·][^|]{0,80}?\s+[-|–—]\s+\S`)

// SectionSource 提供简历章节
type SectionSource interface {
	Sections() types.Sections
}

// ProjectSource 提供项目目录与主项目
type ProjectSource interface {
	Projects() []types.ProjectRecord
	Primary() *types.ProjectRecord
	Aliases() []string
}

// Request 一次上下文构建请求
type Request struct {
	Intent        types.Intent
	Keyword       string
	Sections      []types.SectionName
	Supplementary string
	// Budget 小于等于 0 时使用 Ranker 的默认值
	Budget int
}

type block struct {
	label string
	text  string
}

func (b block) header() string {
	return "--- " + b.label + " ---\n"
}

// Ranker 按意图从简历、项目目录和补充文本中挑选内容并控制长度
type Ranker struct {
	sections SectionSource
	projects ProjectSource
	budget   int
	marker   string
	logger   zerolog.Logger
}

// RankerOption Ranker 选项
type RankerOption func(*Ranker)

// WithBudget 设置默认字符上限
func WithBudget(budget int) RankerOption {
	return func(r *Ranker) {
		if budget > 0 {
			r.budget = budget
		}
	}
}

// WithTruncationMarker 设置截断标记
func WithTruncationMarker(marker string) RankerOption {
	return func(r *Ranker) { r.marker = marker }
}

// WithRankerLogger 设置日志记录器
func WithRankerLogger(logger zerolog.Logger) RankerOption {
	return func(r *Ranker) { r.logger = logger }
}

// NewRanker 创建 Ranker；projects 可以为 nil
func NewRanker(sections SectionSource, projects ProjectSource, opts ...RankerOption) *Ranker {
	r := &Ranker{
		sections: sections,
		projects: projects,
		budget:   DefaultBudget,
		marker:   DefaultTruncationMarker,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BuildContext 返回不超过预算的上下文字符串。所有来源都为空时返回空串。
func (r *Ranker) BuildContext(req Request) string {
	budget := req.Budget
	if budget <= 0 {
		budget = r.budget
	}

	var blocks []block
	switch {
	case req.Intent.IsPrimary():
		blocks = r.primaryBlocks()
	case req.Intent == types.IntentKeywordSearch && strings.TrimSpace(req.Keyword) != "":
		blocks = r.keywordBlocks(req.Keyword, req.Supplementary)
		if len(blocks) == 0 {
			r.logger.Debug().Str("keyword", req.Keyword).Msg("关键词没有命中任何来源，退回通用上下文")
			blocks = r.generalBlocks(req.Sections, req.Supplementary)
		}
	default:
		blocks = r.generalBlocks(req.Sections, req.Supplementary)
	}

	out := assemble(blocks, budget, r.marker)
	r.logger.Debug().Str("intent", string(req.Intent)).Int("blocks", len(blocks)).Int("chars", textproc.RuneLen(out)).Msg("上下文构建完成")
	return out
}

func (r *Ranker) sectionMap() types.Sections {
	if r.sections == nil {
		return nil
	}
	return r.sections.Sections()
}

// primaryBlocks 只包含主项目：项目记录 + PROJECTS 章节中主项目的片段
func (r *Ranker) primaryBlocks() []block {
	var blocks []block
	var primary *types.ProjectRecord
	var aliases []string
	if r.projects != nil {
		primary = r.projects.Primary()
		aliases = r.projects.Aliases()
	}
	if primary != nil && strings.TrimSpace(primary.FlatText) != "" {
		blocks = append(blocks, block{label: "PROJECT RECORD", text: primary.FlatText})
	}

	sections := r.sectionMap()
	source := sections.Get(types.SectionProjects)
	if strings.TrimSpace(source) == "" {
		source = sections.Get(types.SectionOther)
	}
	anchors := aliases
	if primary != nil {
		anchors = append([]string{primary.Title}, aliases...)
	}
	if slice := PrimarySlice(source, anchors, r.otherTitles(primary)); slice != "" {
		blocks = append(blocks, block{label: "PROJECTS", text: slice})
	}
	return blocks
}

func (r *Ranker) otherTitles(primary *types.ProjectRecord) []string {
	if r.projects == nil {
		return nil
	}
	var titles []string
	for _, p := range r.projects.Projects() {
		if primary != nil && p.Title == primary.Title {
			continue
		}
		if p.Title != "" {
			titles = append(titles, p.Title)
		}
	}
	return titles
}

// keywordBlocks 依次扫描简历章节、项目目录、补充文本，收集包含关键词的来源
func (r *Ranker) keywordBlocks(keyword, supplementary string) []block {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	contains := func(text string) bool {
		return text != "" && strings.Contains(strings.ToLower(text), kw)
	}

	var blocks []block
	sections := r.sectionMap()
	for _, name := range append(append([]types.SectionName(nil), types.SectionOrder...), types.SectionOther) {
		if text := sections.Get(name); contains(text) {
			blocks = append(blocks, block{label: string(name), text: text})
		}
	}
	if r.projects != nil {
		for _, p := range r.projects.Projects() {
			if contains(p.FlatText) {
				blocks = append(blocks, block{label: "PROJECT: " + p.Title, text: p.FlatText})
			}
		}
	}
	if contains(supplementary) {
		blocks = append(blocks, block{label: supplementaryName, text: supplementary})
	}
	return blocks
}

// generalBlocks 按分类器给出的章节顺序输出，补充文本放最后
func (r *Ranker) generalBlocks(names []types.SectionName, supplementary string) []block {
	sections := r.sectionMap()
	var blocks []block
	for _, name := range names {
		if text := strings.TrimSpace(sections.Get(name)); text != "" {
			blocks = append(blocks, block{label: string(name), text: text})
		}
	}
	if len(blocks) == 0 && len(names) > 0 {
		// 分类出的章节都为空（例如简历内容全部在 OTHER 中）
		for _, name := range fallbackSections {
			if text := strings.TrimSpace(sections.Get(name)); text != "" {
				blocks = append(blocks, block{label: string(name), text: text})
			}
		}
	}
	if text := strings.TrimSpace(supplementary); text != "" {
		blocks = append(blocks, block{label: supplementaryName, text: text})
	}
	return blocks
}

// assemble 按优先级拼接。完整放得下的块原样放入；第一个放不下的块截断到恰好填满预算并停止。
// 长度按字符（rune）计算，分隔符和标签也计入预算。
func assemble(blocks []block, budget int, marker string) string {
	if budget <= 0 || len(blocks) == 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	for _, blk := range blocks {
		sep := ""
		if used > 0 {
			sep = blockSeparator
		}
		header := blk.header()
		need := textproc.RuneLen(sep) + textproc.RuneLen(header) + textproc.RuneLen(blk.text)
		if used+need <= budget {
			b.WriteString(sep)
			b.WriteString(header)
			b.WriteString(blk.text)
			used += need
			continue
		}

		room := budget - used - textproc.RuneLen(sep) - textproc.RuneLen(header) - textproc.RuneLen(marker)
		switch rest := budget - used; {
		case room > 0:
			b.WriteString(sep)
			b.WriteString(header)
			b.WriteString(textproc.TruncateRunes(blk.text, room))
			b.WriteString(marker)
		case rest > textproc.RuneLen(sep):
			// 连标记都放不下时直接按剩余字符数截断，不加标记
			b.WriteString(textproc.TruncateRunes(sep+header+blk.text, rest))
		}
		break
	}
	return b.String()
}

// PrimarySlice 在项目章节中定位主项目所在行，截取到下一个项目标题（或章节末尾）为止。
// 找不到锚点时返回空串。
func PrimarySlice(projectsText string, anchors, otherTitles []string) string {
	if strings.TrimSpace(projectsText) == "" {
		return ""
	}
	normAnchors := normalizeAll(anchors)
	normOthers := normalizeAll(otherTitles)
	if len(normAnchors) == 0 {
		return ""
	}

	lines := strings.Split(projectsText, "\n")
	start := -1
	for i, line := range lines {
		if containsAny(textproc.Normalize(line), normAnchors) {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	end := len(lines)
	prevBlank := false
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			prevBlank = true
			continue
		}
		norm := textproc.Normalize(trimmed)
		if containsAny(norm, normOthers) {
			end = i
			break
		}
		bullet := isBullet(trimmed)
		if !bullet && (prevBlank || projectHeadingLine.MatchString(trimmed)) && !containsAny(norm, normAnchors) {
			end = i
			break
		}
		prevBlank = false
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

func isBullet(line string) bool {
	for _, prefix := range []string{"-", "*", "•", "·", "–"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func normalizeAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if n := textproc.Normalize(it); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsAny(norm string, phrases []string) bool {
	for _, p := range phrases {
		if textproc.ContainsPhrase(norm, p) {
			return true
		}
	}
	return false
}
