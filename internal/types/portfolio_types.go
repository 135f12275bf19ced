package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// SectionName 表示简历章节名称
type SectionName string

const (
	// SectionSummary 个人简介章节
	SectionSummary SectionName = "SUMMARY"
	// SectionExperience 工作经历章节
	SectionExperience SectionName = "EXPERIENCE"
	// SectionProjects 项目经历章节
	SectionProjects SectionName = "PROJECTS"
	// SectionSkills 技能章节
	SectionSkills SectionName = "SKILLS"
	// SectionEducation 教育经历章节
	SectionEducation SectionName = "EDUCATION"
	// SectionOther 未识别标题的内容
	SectionOther SectionName = "OTHER"
)

// SectionOrder 是章节的固定优先级顺序，分类器和上下文排序都依赖它
var SectionOrder = []SectionName{
	SectionSummary,
	SectionExperience,
	SectionSkills,
	SectionProjects,
	SectionEducation,
}

// DefaultBroadSections 没有命中任何类别关键词时返回的默认章节集合
var DefaultBroadSections = []SectionName{
	SectionSummary,
	SectionExperience,
	SectionSkills,
}

// Sections 章节名到章节文本的映射，单次进程内只读
type Sections map[SectionName]string

// Get 返回章节文本，不存在时返回空串
func (s Sections) Get(name SectionName) string {
	if s == nil {
		return ""
	}
	return s[name]
}

// TotalLength 返回所有章节文本的字符总数
func (s Sections) TotalLength() int {
	total := 0
	for _, text := range s {
		total += len(text)
	}
	return total
}

// ProjectRecord 项目目录中的一条项目记录
type ProjectRecord struct {
	Title       string   `json:"title"`
	Slug        string   `json:"slug,omitempty"`
	Description string   `json:"description"`
	Tech        []string `json:"tech"`
	// FlatText 由标题、描述与技术栈拼接而成，用于匹配和上下文
	FlatText string `json:"-"`
}

// Intent 问题意图
type Intent string

const (
	// IntentPrimaryProjectOnly 询问"主要/最近的项目"，单数且无技术限定
	IntentPrimaryProjectOnly Intent = "primary_project_only"
	// IntentExplicitPrimaryMention 问题中直接点名了主项目
	IntentExplicitPrimaryMention Intent = "explicit_primary_mention"
	// IntentKeywordSearch 按技术关键词查找项目
	IntentKeywordSearch Intent = "keyword_search"
	// IntentGeneral 默认意图
	IntentGeneral Intent = "general"
)

// IsPrimary 判断意图是否只允许主项目上下文
func (i Intent) IsPrimary() bool {
	return i == IntentPrimaryProjectOnly || i == IntentExplicitPrimaryMention
}

// Classification 分类器的输出
type Classification struct {
	Intent   Intent        `json:"intent"`
	Keyword  string        `json:"keyword,omitempty"`
	Sections []SectionName `json:"sections"`
}

// MemoryEntry 记忆缓存中的一条问答记录，创建后不再修改
type MemoryEntry struct {
	ID           string        `json:"id,omitempty"`
	Question     string        `json:"question"`
	Answer       string        `json:"answer"`
	SectionsUsed []SectionName `json:"sections_used"`
	CreatedAt    time.Time     `json:"timestamp"`
	Fingerprint  string        `json:"question_hash"`
	// IsBroad 沿用持久化文件中的 is_easy 字段名
	IsBroad bool `json:"is_easy"`
}

// 持久化时间戳可接受的格式；不带时区的按 UTC 解析，小数秒可有可无
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON 兼容不带时区的 ISO-8601 时间戳，例如 "2025-01-02T03:04:05.123456"
func (e *MemoryEntry) UnmarshalJSON(data []byte) error {
	type alias MemoryEntry
	aux := struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := ParseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	e.CreatedAt = t
	return nil
}

// ParseTimestamp 解析持久化的时间戳，空串返回零值
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间戳 %q", s)
}

// MemoryStats 记忆缓存统计
type MemoryStats struct {
	Total  int `json:"total_entries"`
	Broad  int `json:"easy_questions"`
	Narrow int `json:"complex_questions"`
}
