// Package rag 实现问题意图分类与上下文拼装。
package rag

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/internal/types"
)

// 以下正则均作用于 textproc.Normalize 之后的文本
var (
	primaryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bexplain (your|this) project\b`),
		regexp.MustCompile(`\btell me about your project\b`),
		regexp.MustCompile(`\b(most recent|main|best|latest|primary|biggest) project\b`),
		regexp.MustCompile(`\bwalk me through (your )?project\b`),
	}
	whichProjectFraming = regexp.MustCompile(`\b(which|what) (\w+ ){0,6}projects?\b`)
	projectUsesFraming  = regexp.MustCompile(`\bprojects? (\w+ ){0,4}(use|uses|used|using|built with|with|involve|involves|involving)\b`)

	projectQuestionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bwalk me through\b.*\bproject`),
		regexp.MustCompile(`\btell me about\b.*\bproject`),
		regexp.MustCompile(`\bdescribe\b.*\bproject`),
		regexp.MustCompile(`\bwhat\b.*\bproject`),
		regexp.MustCompile(`\bshow me\b.*\bproject`),
		regexp.MustCompile(`\b(most recent|latest|main|best|biggest|primary|portfolio) project`),
		regexp.MustCompile(`\bwhat\b.*\b(built|developed|created)\b`),
		regexp.MustCompile(`\bexplain (your|this) project`),
	}

	skillsLineSplit = regexp.MustCompile(`[,;/|•·\n]+`)
)

// category 问题关键词到章节的映射，关键词按单词前缀匹配
type category struct {
	prefixes []string
	sections []types.SectionName
}

var sectionCategories = []category{
	{[]string{"project", "built", "developed", "created", "github", "portfolio"}, []types.SectionName{types.SectionProjects}},
	{[]string{"skill", "technolog", "language", "framework", "tool", "stack", "know", "expertise"}, []types.SectionName{types.SectionSkills}},
	{[]string{"experience", "work", "job", "role", "position", "compan", "hired"}, []types.SectionName{types.SectionExperience}},
	{[]string{"education", "degree", "universit", "college", "study", "studied", "graduat", "academic"}, []types.SectionName{types.SectionEducation}},
	{[]string{"about", "yourself", "who", "background", "summar", "overview"}, types.DefaultBroadSections},
}

// question 分类时使用的问题视图
type question struct {
	norm   string
	tokens []string
}

// rule 规则链中的一条：predicate 命中即返回 intent 与抽取到的关键词
type rule struct {
	name      string
	intent    types.Intent
	predicate func(c *Classifier, q question) (keyword string, ok bool)
}

// rules 按优先级排列，第一条命中的规则决定意图
var rules = []rule{
	{
		name:   "primary_alias_mention",
		intent: types.IntentExplicitPrimaryMention,
		predicate: func(c *Classifier, q question) (string, bool) {
			return "", c.mentionsPrimary(q.norm)
		},
	},
	{
		name:   "primary_singular_framing",
		intent: types.IntentPrimaryProjectOnly,
		predicate: func(c *Classifier, q question) (string, bool) {
			if _, hasTech := c.findTech(q.norm); hasTech {
				return "", false
			}
			for _, p := range primaryPatterns {
				if p.MatchString(q.norm) {
					return "", true
				}
			}
			return "", false
		},
	},
	{
		name:   "tech_keyword_project_framing",
		intent: types.IntentKeywordSearch,
		predicate: func(c *Classifier, q question) (string, bool) {
			if !whichProjectFraming.MatchString(q.norm) && !projectUsesFraming.MatchString(q.norm) {
				return "", false
			}
			return c.findTech(q.norm)
		},
	},
	{
		name:   "fallback",
		intent: types.IntentGeneral,
		predicate: func(*Classifier, question) (string, bool) {
			return "", true
		},
	},
}

// techTerm 技术词：norm 用于匹配，keyword 是返回给检索的原始写法（小写）
type techTerm struct {
	norm    string
	keyword string
}

// Classifier 问题意图分类器，构造后只读，可并发使用
type Classifier struct {
	aliases []string
	tech    []techTerm
	logger  zerolog.Logger
}

// ClassifierOption 分类器选项
type ClassifierOption func(*Classifier)

// WithPrimaryAliases 设置主项目名称与别名
func WithPrimaryAliases(aliases ...string) ClassifierOption {
	return func(c *Classifier) {
		for _, a := range aliases {
			if n := textproc.Normalize(a); n != "" {
				c.aliases = append(c.aliases, n)
			}
		}
	}
}

// WithTechVocabulary 追加技术词表
func WithTechVocabulary(terms ...string) ClassifierOption {
	return func(c *Classifier) {
		for _, t := range terms {
			c.addTech(t)
		}
	}
}

// WithSkillsText 从 SKILLS 章节中提取技术词
func WithSkillsText(skills string) ClassifierOption {
	return func(c *Classifier) {
		for _, t := range SkillTerms(skills) {
			c.addTech(t)
		}
	}
}

// WithClassifierLogger 设置日志记录器
func WithClassifierLogger(logger zerolog.Logger) ClassifierOption {
	return func(c *Classifier) { c.logger = logger }
}

// NewClassifier 创建分类器。主项目的标题和技术栈会自动加入别名和词表。
func NewClassifier(primary *types.ProjectRecord, opts ...ClassifierOption) *Classifier {
	c := &Classifier{logger: zerolog.Nop()}
	if primary != nil {
		WithPrimaryAliases(primary.Title)(c)
		WithTechVocabulary(primary.Tech...)(c)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.aliases = dedupe(c.aliases)
	// 长词优先，"react native" 先于 "react"
	sort.SliceStable(c.tech, func(i, j int) bool {
		return len(c.tech[i].norm) > len(c.tech[j].norm)
	})
	return c
}

func (c *Classifier) addTech(term string) {
	keyword := strings.ToLower(strings.TrimSpace(term))
	norm := textproc.Normalize(keyword)
	if norm == "" || textproc.RuneLen(norm) < 2 {
		return
	}
	for _, existing := range c.tech {
		if existing.norm == norm {
			return
		}
	}
	c.tech = append(c.tech, techTerm{norm: norm, keyword: keyword})
}

// Classify 返回问题的意图、关键词（仅 keyword_search）以及相关章节
func (c *Classifier) Classify(text string) types.Classification {
	norm := textproc.Normalize(text)
	if norm == "" {
		return types.Classification{Intent: types.IntentGeneral}
	}
	q := question{norm: norm, tokens: strings.Fields(norm)}

	result := types.Classification{Intent: types.IntentGeneral, Sections: SectionsFor(q.tokens)}
	for _, r := range rules {
		keyword, ok := r.predicate(c, q)
		if !ok {
			continue
		}
		result.Intent = r.intent
		result.Keyword = keyword
		c.logger.Debug().Str("rule", r.name).Str("intent", string(r.intent)).Str("keyword", keyword).Msg("问题分类完成")
		break
	}
	return result
}

// ClassifySections 只返回相关章节
func (c *Classifier) ClassifySections(text string) []types.SectionName {
	return SectionsFor(textproc.Tokenize(text))
}

func (c *Classifier) mentionsPrimary(norm string) bool {
	for _, alias := range c.aliases {
		if textproc.ContainsPhrase(norm, alias) {
			return true
		}
	}
	return false
}

func (c *Classifier) findTech(norm string) (string, bool) {
	for _, t := range c.tech {
		if textproc.ContainsPhrase(norm, t.norm) {
			return t.keyword, true
		}
	}
	return "", false
}

// SectionsFor 按类别关键词得到相关章节，按固定优先级排序并去重；无命中时返回默认章节
func SectionsFor(tokens []string) []types.SectionName {
	if len(tokens) == 0 {
		return nil
	}
	matched := make(map[types.SectionName]bool)
	for _, cat := range sectionCategories {
		for _, prefix := range cat.prefixes {
			if textproc.HasWordPrefix(tokens, prefix) {
				for _, s := range cat.sections {
					matched[s] = true
				}
				break
			}
		}
	}
	if len(matched) == 0 {
		return append([]types.SectionName(nil), types.DefaultBroadSections...)
	}
	out := make([]types.SectionName, 0, len(matched))
	for _, s := range types.SectionOrder {
		if matched[s] {
			out = append(out, s)
		}
	}
	return out
}

// IsProjectQuestion 判断问题是否在问项目（用于缓存的项目一致性检查和联网补充判断）
func IsProjectQuestion(text string) bool {
	norm := textproc.Normalize(text)
	if norm == "" {
		return false
	}
	for _, p := range projectQuestionPatterns {
		if p.MatchString(norm) {
			return true
		}
	}
	return false
}

// SkillTerms 把 SKILLS 章节拆成技术词。"Languages: Go, Python" 只取冒号后的部分。
func SkillTerms(skills string) []string {
	var out []string
	for _, line := range strings.Split(skills, "\n") {
		if idx := strings.Index(line, ":"); idx >= 0 {
			line = line[idx+1:]
		}
		for _, part := range skillsLineSplit.Split(line, -1) {
			term := strings.Trim(strings.TrimSpace(part), "-*•()[]. ")
			if term == "" || len(strings.Fields(term)) > 3 {
				continue
			}
			out = append(out, term)
		}
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
