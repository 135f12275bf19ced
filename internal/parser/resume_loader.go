package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"

	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/internal/types"
)

// ErrDocsDirNotFound 资料目录不存在
var ErrDocsDirNotFound = errors.New("docs directory not found")

// ResumeCorpus 加载后的简历内容，进程内只读
type ResumeCorpus struct {
	sections types.Sections
	links    []string
	fullText string
}

// NewResumeCorpus 由已切分的章节构造简历内容，主要用于测试和内存数据源
func NewResumeCorpus(sections types.Sections, links []string, fullText string) *ResumeCorpus {
	if sections == nil {
		sections = types.Sections{}
	}
	return &ResumeCorpus{sections: sections, links: links, fullText: fullText}
}

// Sections 返回章节映射
func (r *ResumeCorpus) Sections() types.Sections { return r.sections }

// Links 返回简历中出现的全部链接（已排序去重）
func (r *ResumeCorpus) Links() []string { return r.links }

// FullText 返回所有简历文件拼接后的全文
func (r *ResumeCorpus) FullText() string { return r.fullText }

// ResumeLoader 从资料目录读取简历文件
type ResumeLoader struct {
	docsDir string
	pdf     PDFExtractor
	logger  zerolog.Logger
}

// ResumeLoaderOption 简历加载器选项
type ResumeLoaderOption func(*ResumeLoader)

// WithPDFExtractor 设置 PDF 提取器；未设置时跳过 PDF 文件
func WithPDFExtractor(p PDFExtractor) ResumeLoaderOption {
	return func(l *ResumeLoader) { l.pdf = p }
}

// WithResumeLogger 设置日志记录器
func WithResumeLogger(logger zerolog.Logger) ResumeLoaderOption {
	return func(l *ResumeLoader) { l.logger = logger }
}

// NewResumeLoader 创建简历加载器
func NewResumeLoader(docsDir string, opts ...ResumeLoaderOption) *ResumeLoader {
	l := &ResumeLoader{docsDir: docsDir, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load 递归读取目录下的 .pdf/.txt/.md/.tex 文件，提取文本、链接并切分章节。
// 单个文件失败只记录日志；目录不存在返回 ErrDocsDirNotFound。
func (l *ResumeLoader) Load(ctx context.Context) (*ResumeCorpus, error) {
	info, err := os.Stat(l.docsDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDocsDirNotFound, l.docsDir)
	}

	var parts []string
	linkSet := make(map[string]struct{})

	walkErr := filepath.WalkDir(l.docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("遍历资料目录出错，跳过")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		content, ok := l.readFile(ctx, path)
		if !ok || strings.TrimSpace(content) == "" {
			return nil
		}
		parts = append(parts, content)
		links := textproc.ExtractLinks(content)
		for _, link := range links {
			linkSet[link] = struct{}{}
		}
		l.logger.Info().Str("file", d.Name()).Int("chars", len(content)).Int("links", len(links)).Msg("已加载简历文件")
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("读取资料目录失败: %w", walkErr)
	}

	fullText := strings.Join(parts, "\n\n")
	sections := ExtractSections(fullText)

	links := make([]string, 0, len(linkSet))
	for link := range linkSet {
		links = append(links, link)
	}
	sort.Strings(links)

	l.logger.Info().
		Int("files", len(parts)).
		Int("chars", len(fullText)).
		Int("links", len(links)).
		Int("experience_chars", len(sections.Get(types.SectionExperience))).
		Int("projects_chars", len(sections.Get(types.SectionProjects))).
		Int("skills_chars", len(sections.Get(types.SectionSkills))).
		Msg("简历加载完成")

	return NewResumeCorpus(sections, links, fullText), nil
}

func (l *ResumeLoader) readFile(ctx context.Context, path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		if l.pdf == nil {
			l.logger.Warn().Str("file", path).Msg("未配置PDF提取器，跳过")
			return "", false
		}
		text, _, err := l.pdf.ExtractFromFile(ctx, path)
		if err != nil {
			l.logger.Error().Err(err).Str("file", path).Msg("PDF解析失败，跳过")
			return "", false
		}
		return textproc.CleanLatex(text), true
	case ".txt", ".md", ".tex":
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Error().Err(err).Str("file", path).Msg("读取文本文件失败，跳过")
			return "", false
		}
		return textproc.CleanLatex(decodeText(data)), true
	case ".docx", ".doc":
		l.logger.Warn().Str("file", path).Msg("暂不支持Word文档，跳过")
		return "", false
	default:
		return "", false
	}
}

// decodeText 优先按 UTF-8 解码，失败时按 Windows-1252 解码
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}
	return string(decoded)
}
