package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/types"
)

// CatalogSeparator 项目目录文本中各项目之间的分隔符
const CatalogSeparator = "\n\n---\n\n"

// ProjectCatalog 项目目录以及唯一的主项目
type ProjectCatalog struct {
	projects []types.ProjectRecord
	primary  *types.ProjectRecord
	aliases  []string
}

// NewProjectCatalog 用给定的项目列表构造目录，并按别名选出主项目
func NewProjectCatalog(projects []types.ProjectRecord, aliases []string) *ProjectCatalog {
	c := &ProjectCatalog{aliases: normalizeAliases(aliases)}
	for _, p := range projects {
		if p.FlatText == "" {
			p.FlatText = FlattenProject(p)
		}
		c.projects = append(c.projects, p)
	}
	for i := range c.projects {
		if c.matchesAlias(c.projects[i]) {
			c.primary = &c.projects[i]
			break
		}
	}
	return c
}

func normalizeAliases(aliases []string) []string {
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *ProjectCatalog) matchesAlias(p types.ProjectRecord) bool {
	title := strings.ToLower(p.Title)
	slug := strings.ToLower(p.Slug)
	for _, alias := range c.aliases {
		if strings.Contains(title, alias) || (slug != "" && strings.Contains(slug, alias)) {
			return true
		}
	}
	return false
}

// Projects 返回全部项目
func (c *ProjectCatalog) Projects() []types.ProjectRecord {
	if c == nil {
		return nil
	}
	return c.projects
}

// Primary 返回主项目，没有时返回 nil
func (c *ProjectCatalog) Primary() *types.ProjectRecord {
	if c == nil {
		return nil
	}
	return c.primary
}

// Aliases 返回主项目别名（小写）
func (c *ProjectCatalog) Aliases() []string {
	if c == nil {
		return nil
	}
	return c.aliases
}

// Titles 返回全部项目标题
func (c *ProjectCatalog) Titles() []string {
	if c == nil {
		return nil
	}
	titles := make([]string, 0, len(c.projects))
	for _, p := range c.projects {
		if p.Title != "" {
			titles = append(titles, p.Title)
		}
	}
	return titles
}

// CatalogText 返回所有项目的扁平文本，用于检索
func (c *ProjectCatalog) CatalogText() string {
	if c == nil {
		return ""
	}
	parts := make([]string, 0, len(c.projects))
	for _, p := range c.projects {
		parts = append(parts, p.FlatText)
	}
	return strings.Join(parts, CatalogSeparator)
}

// FlattenProject 生成 "title | description | Tech: a, b" 形式的文本，空字段省略
func FlattenProject(p types.ProjectRecord) string {
	var parts []string
	if t := strings.TrimSpace(p.Title); t != "" {
		parts = append(parts, t)
	}
	if d := strings.TrimSpace(p.Description); d != "" {
		parts = append(parts, d)
	}
	if len(p.Tech) > 0 {
		parts = append(parts, "Tech: "+strings.Join(p.Tech, ", "))
	}
	return strings.Join(parts, " | ")
}

// projectFile project.json 的几种布局：{"courses":[...],"prev":[...]} 或 {"projects":[...]}
type projectFile struct {
	Courses  []rawProject `json:"courses"`
	Prev     []rawProject `json:"prev"`
	Projects []rawProject `json:"projects"`
}

type rawProject struct {
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Tech        json.RawMessage `json:"tech"`
}

// techNames 解析 tech 字段：字符串数组、{"name":...} 对象数组或单个字符串
func techNames(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			return []string{single}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{strings.TrimSpace(string(raw))}
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && strings.TrimSpace(obj.Name) != "" {
			names = append(names, strings.TrimSpace(obj.Name))
		}
	}
	return names
}

// ProjectLoader 从资料目录读取项目 JSON
type ProjectLoader struct {
	docsDir   string
	fileNames []string
	aliases   []string
	logger    zerolog.Logger
}

// ProjectLoaderOption 项目加载器选项
type ProjectLoaderOption func(*ProjectLoader)

// WithProjectFileNames 设置候选文件名（按顺序尝试）
func WithProjectFileNames(names ...string) ProjectLoaderOption {
	return func(l *ProjectLoader) {
		if len(names) > 0 {
			l.fileNames = names
		}
	}
}

// WithProjectLogger 设置日志记录器
func WithProjectLogger(logger zerolog.Logger) ProjectLoaderOption {
	return func(l *ProjectLoader) { l.logger = logger }
}

// NewProjectLoader 创建项目加载器，aliases 用于识别主项目
func NewProjectLoader(docsDir string, aliases []string, opts ...ProjectLoaderOption) *ProjectLoader {
	l := &ProjectLoader{
		docsDir:   docsDir,
		fileNames: []string{"project.json", "projects.json"},
		aliases:   aliases,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load 读取第一个可解析的项目文件。文件缺失或格式错误时返回空目录，不视为错误。
func (l *ProjectLoader) Load(ctx context.Context) (*ProjectCatalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, name := range l.fileNames {
		path := filepath.Join(l.docsDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				l.logger.Error().Err(err).Str("file", name).Msg("读取项目文件失败")
			}
			continue
		}
		catalog, err := l.parse(data)
		if err != nil {
			l.logger.Error().Err(err).Str("file", name).Msg("项目文件不是合法的JSON")
			continue
		}
		if len(catalog.Projects()) == 0 {
			l.logger.Warn().Str("file", name).Msg("项目文件中没有项目")
			continue
		}
		evt := l.logger.Info().Str("file", name).Int("projects", len(catalog.Projects()))
		if p := catalog.Primary(); p != nil {
			evt = evt.Str("primary", p.Title)
		} else {
			l.logger.Warn().Strs("aliases", l.aliases).Msg("未找到主项目")
		}
		evt.Msg("项目目录加载完成")
		return catalog, nil
	}

	l.logger.Warn().Str("docs_dir", l.docsDir).Msg("没有找到可用的项目文件")
	return NewProjectCatalog(nil, l.aliases), nil
}

func (l *ProjectLoader) parse(data []byte) (*ProjectCatalog, error) {
	var file projectFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析项目文件失败: %w", err)
	}
	var raws []rawProject
	raws = append(raws, file.Courses...)
	raws = append(raws, file.Prev...)
	raws = append(raws, file.Projects...)

	records := make([]types.ProjectRecord, 0, len(raws))
	for _, raw := range raws {
		rec := types.ProjectRecord{
			Title:       strings.TrimSpace(raw.Title),
			Slug:        strings.TrimSpace(raw.Slug),
			Description: strings.TrimSpace(raw.Description),
			Tech:        techNames(raw.Tech),
		}
		rec.FlatText = FlattenProject(rec)
		if rec.FlatText == "" {
			continue
		}
		records = append(records, rec)
	}
	return NewProjectCatalog(records, l.aliases), nil
}
