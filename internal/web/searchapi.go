// Package web 提供联网补充上下文：SearchAPI 搜索与 GitHub README 抓取。
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/constants"
	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/pkg/utils"
)

var (
	// ErrSearchDisabled 未配置 API Key
	ErrSearchDisabled = errors.New("web: search api key not configured")
	// ErrQuotaExceeded 本月额度已用完（本地计数或接口返回 429）
	ErrQuotaExceeded = errors.New("web: search api quota exceeded")
	// ErrUnauthorized API Key 无效
	ErrUnauthorized = errors.New("web: search api authentication failed")
)

// quotaTTL 月度计数键的过期时间，覆盖最长的自然月
const quotaTTL = 32 * 24 * time.Hour

// QuotaCounter 月度请求计数，由 storage.Redis 实现
type QuotaCounter interface {
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
}

type organicResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type searchResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
}

// SearchClient SearchAPI.io 客户端
type SearchClient struct {
	apiKey        string
	baseURL       string
	engine        string
	maxResults    int
	resultsToUse  int
	snippetLength int
	timeout       time.Duration

	httpClient   *client.Client
	quota        QuotaCounter
	monthlyQuota int
	logger       zerolog.Logger
	now          func() time.Time
}

// SearchOption SearchClient 选项
type SearchOption func(*SearchClient)

// WithQuotaCounter 启用月度额度控制
func WithQuotaCounter(q QuotaCounter, monthly int) SearchOption {
	return func(c *SearchClient) {
		c.quota = q
		c.monthlyQuota = monthly
	}
}

// WithSearchHTTPClient 使用外部创建的 hertz 客户端
func WithSearchHTTPClient(hc *client.Client) SearchOption {
	return func(c *SearchClient) { c.httpClient = hc }
}

// WithSearchLogger 设置日志记录器
func WithSearchLogger(logger zerolog.Logger) SearchOption {
	return func(c *SearchClient) { c.logger = logger }
}

// WithSearchClock 替换时间函数，决定额度计数所在的月份
func WithSearchClock(now func() time.Time) SearchOption {
	return func(c *SearchClient) { c.now = now }
}

// NewSearchClient 创建客户端。未配置 API Key 时仍返回可用对象，Search 返回 ErrSearchDisabled。
func NewSearchClient(cfg config.SearchAPIConfig, opts ...SearchOption) (*SearchClient, error) {
	c := &SearchClient{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		baseURL:       cfg.BaseURL,
		engine:        cfg.Engine,
		maxResults:    cfg.MaxResults,
		resultsToUse:  cfg.ResultsToUse,
		snippetLength: cfg.SnippetLength,
		timeout:       config.GetDuration(cfg.Timeout, 10*time.Second),
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
	if c.engine == "" {
		c.engine = "google"
	}
	if c.resultsToUse <= 0 {
		c.resultsToUse = 2
	}
	if c.snippetLength <= 0 {
		c.snippetLength = 200
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		hc, err := utils.NewHTTPClient(c.timeout)
		if err != nil {
			return nil, err
		}
		c.httpClient = hc
	}
	if c.apiKey == "" {
		c.logger.Warn().Msg("未配置 SearchAPI Key，联网搜索不可用")
	}
	return c, nil
}

// Enabled 是否配置了 API Key
func (c *SearchClient) Enabled() bool {
	return c != nil && c.apiKey != ""
}

func (c *SearchClient) quotaKey() string {
	return fmt.Sprintf(constants.KeySearchAPIQuota, utils.MonthKey(c.now()))
}

// Search 执行搜索，返回前几条结果拼成的 "title: snippet" 文本；没有结果时返回空串。
func (c *SearchClient) Search(ctx context.Context, query string) (string, error) {
	if !c.Enabled() {
		return "", ErrSearchDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	if c.quota != nil && c.monthlyQuota > 0 {
		used, err := c.quota.GetInt(ctx, c.quotaKey())
		if err != nil {
			c.logger.Warn().Err(err).Msg("读取 SearchAPI 额度失败，继续请求")
		} else if used >= int64(c.monthlyQuota) {
			return "", ErrQuotaExceeded
		}
	}

	params := url.Values{}
	params.Set("engine", c.engine)
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	if c.maxResults > 0 {
		params.Set("num", strconv.Itoa(c.maxResults))
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)
	req.SetRequestURI(c.baseURL + "?" + params.Encode())
	req.SetMethod(consts.MethodGet)

	c.logger.Info().Str("query", query).Msg("SearchAPI 查询")
	if err := c.httpClient.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return "", fmt.Errorf("SearchAPI 请求失败: %w", err)
	}

	if c.quota != nil {
		if _, err := c.quota.IncrWithExpire(ctx, c.quotaKey(), quotaTTL); err != nil {
			c.logger.Warn().Err(err).Msg("更新 SearchAPI 额度计数失败")
		}
	}

	switch status := resp.StatusCode(); status {
	case consts.StatusOK:
	case consts.StatusTooManyRequests:
		return "", ErrQuotaExceeded
	case consts.StatusUnauthorized:
		return "", ErrUnauthorized
	default:
		return "", fmt.Errorf("SearchAPI 返回状态码 %d", status)
	}

	var data searchResponse
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return "", fmt.Errorf("解析 SearchAPI 响应失败: %w", err)
	}

	results := data.OrganicResults
	if len(results) > c.resultsToUse {
		results = results[:c.resultsToUse]
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Title == "" || r.Snippet == "" {
			continue
		}
		parts = append(parts, r.Title+": "+textproc.TruncateRunes(r.Snippet, c.snippetLength))
	}
	c.logger.Info().Int("results", len(parts)).Msg("SearchAPI 返回结果")
	return strings.Join(parts, "\n"), nil
}
