package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/pkg/utils"
)

const maxRedirects = 5

// ErrScraperDisabled 抓取功能已关闭
var ErrScraperDisabled = errors.New("web: scraper disabled")

// 不包含正文的元素
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
}

var readmePattern = regexp.MustCompile(`(?is)README.*?(?:\n\n|\z)`)

// Source 一段带来源标签的外部内容
type Source struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// FormatSources 把外部内容拼成补充上下文文本
func FormatSources(sources []Source) string {
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		parts = append(parts, "["+s.Label+"]\n"+s.Content)
	}
	return strings.Join(parts, "\n\n")
}

// Scraper 抓取网页正文，主要用于简历中的 GitHub 仓库链接
type Scraper struct {
	enabled        bool
	userAgent      string
	maxGitHubLinks int
	maxTextLength  int
	maxReadmeChars int
	timeout        time.Duration
	httpClient     *client.Client
	logger         zerolog.Logger
	// resolve 把仓库链接映射为实际请求的地址
	resolve func(link string) string
}

// ScraperOption Scraper 选项
type ScraperOption func(*Scraper)

// WithScraperHTTPClient 使用外部创建的 hertz 客户端
func WithScraperHTTPClient(hc *client.Client) ScraperOption {
	return func(s *Scraper) { s.httpClient = hc }
}

// WithScraperLogger 设置日志记录器
func WithScraperLogger(logger zerolog.Logger) ScraperOption {
	return func(s *Scraper) { s.logger = logger }
}

// NewScraper 创建 Scraper
func NewScraper(cfg config.ScraperConfig, opts ...ScraperOption) (*Scraper, error) {
	s := &Scraper{
		enabled:        cfg.Enabled,
		userAgent:      cfg.UserAgent,
		maxGitHubLinks: cfg.MaxGitHubLinks,
		maxTextLength:  cfg.MaxTextLength,
		maxReadmeChars: cfg.MaxReadmeChars,
		timeout:        config.GetDuration(cfg.Timeout, 15*time.Second),
		logger:         zerolog.Nop(),
		resolve:        func(link string) string { return link },
	}
	if s.maxGitHubLinks <= 0 {
		s.maxGitHubLinks = 3
	}
	if s.maxTextLength <= 0 {
		s.maxTextLength = 2000
	}
	if s.maxReadmeChars <= 0 {
		s.maxReadmeChars = 1000
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpClient == nil {
		hc, err := utils.NewHTTPClient(s.timeout)
		if err != nil {
			return nil, err
		}
		s.httpClient = hc
	}
	return s, nil
}

// ScrapePage 抓取网页，返回标题和去掉脚本、导航等元素后的正文
func (s *Scraper) ScrapePage(ctx context.Context, url string) (string, string, error) {
	if !s.enabled {
		return "", "", ErrScraperDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)
	req.SetRequestURI(url)
	req.SetMethod(consts.MethodGet)
	if s.userAgent != "" {
		req.Header.SetUserAgentBytes([]byte(s.userAgent))
	}

	if err := s.httpClient.DoRedirects(ctx, req, resp, maxRedirects); err != nil {
		return "", "", fmt.Errorf("抓取 %s 失败: %w", url, err)
	}
	if status := resp.StatusCode(); status != consts.StatusOK {
		return "", "", fmt.Errorf("抓取 %s 返回状态码 %d", url, status)
	}

	title, text, err := ExtractText(resp.Body())
	if err != nil {
		return "", "", fmt.Errorf("解析 %s 失败: %w", url, err)
	}
	if textproc.RuneLen(text) > s.maxTextLength {
		text = textproc.TruncateRunes(text, s.maxTextLength) + "..."
	}
	s.logger.Debug().Str("url", url).Int("chars", len(text)).Msg("网页抓取完成")
	return title, text, nil
}

// ExtractText 解析 HTML，返回标题和按行拼接的可见文本
func ExtractText(body []byte) (string, string, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}

	var title string
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Title && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
		}
		if n.Type == html.TextNode {
			if line := strings.Join(strings.Fields(n.Data), " "); line != "" {
				lines = append(lines, line)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if title == "" {
		title = "No title"
	}
	return title, strings.Join(lines, "\n"), nil
}

// ProcessGitHubLinks 抓取前若干个 GitHub 仓库页面，尽量截取 README 部分。
// 单个链接失败只记录日志。
func (s *Scraper) ProcessGitHubLinks(ctx context.Context, links []string) []Source {
	if !s.enabled || len(links) == 0 {
		return nil
	}
	if len(links) > s.maxGitHubLinks {
		links = links[:s.maxGitHubLinks]
	}

	var out []Source
	for _, link := range links {
		slug := textproc.GitHubRepoSlug(link)
		if slug == "" {
			continue
		}
		_, text, err := s.ScrapePage(ctx, s.resolve(link))
		if err != nil {
			s.logger.Warn().Err(err).Str("repo", slug).Msg("GitHub 仓库抓取失败")
			continue
		}
		if text == "" {
			continue
		}
		if m := readmePattern.FindString(text); m != "" {
			text = strings.TrimSpace(m)
		}
		text = textproc.TruncateRunes(text, s.maxReadmeChars)
		out = append(out, Source{Label: "GitHub: " + slug, Content: text})
		s.logger.Info().Str("repo", slug).Msg("已提取 GitHub 仓库内容")
	}
	return out
}
