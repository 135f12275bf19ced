package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/types"
)

func searchConfig(baseURL string) config.SearchAPIConfig {
	cfg := config.DefaultConfig().SearchAPI
	cfg.APIKey = "search-key"
	cfg.BaseURL = baseURL
	return cfg
}

func TestSearchFormatsTopResults(t *testing.T) {
	long := strings.Repeat("s", 300)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "google", q.Get("engine"))
		assert.Equal(t, "linkup github", q.Get("q"))
		assert.Equal(t, "search-key", q.Get("api_key"))
		assert.Equal(t, "3", q.Get("num"))
		fmt.Fprintf(w, `{"organic_results":[{"title":"LinkUp","snippet":%q},{"title":"Repo","snippet":"code"},{"title":"Third","snippet":"ignored"}]}`, long)
	}))
	defer srv.Close()

	c, err := NewSearchClient(searchConfig(srv.URL))
	require.NoError(t, err)
	require.True(t, c.Enabled())

	out, err := c.Search(context.Background(), "linkup github")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2, "只使用前两条结果")
	assert.Equal(t, "LinkUp: "+strings.Repeat("s", 200), lines[0], "摘要截断到 200 字符")
	assert.Equal(t, "Repo: code", lines[1])
}

func TestSearchStatusErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c, err := NewSearchClient(searchConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Search(context.Background(), "q")
	require.ErrorIs(t, err, ErrQuotaExceeded)

	status = http.StatusUnauthorized
	_, err = c.Search(context.Background(), "q")
	require.ErrorIs(t, err, ErrUnauthorized)

	status = http.StatusInternalServerError
	_, err = c.Search(context.Background(), "q")
	require.Error(t, err)
}

func TestSearchDisabledWithoutKey(t *testing.T) {
	cfg := searchConfig("http://127.0.0.1:1")
	cfg.APIKey = ""
	c, err := NewSearchClient(cfg)
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	_, err = c.Search(context.Background(), "q")
	require.ErrorIs(t, err, ErrSearchDisabled)
}

func TestSearchMonthlyQuota(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"organic_results":[]}`)
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	counter := storage.NewRedisFromClient(client)

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c, err := NewSearchClient(searchConfig(srv.URL),
		WithQuotaCounter(counter, 2),
		WithSearchClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		out, err := c.Search(context.Background(), "q")
		require.NoError(t, err)
		assert.Empty(t, out, "没有结果时返回空串")
	}
	_, err = c.Search(context.Background(), "q")
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 2, requests, "额度用完后不再发请求")

	val, err := mr.Get("app:web:quota:202610")
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}

func TestExtractText(t *testing.T) {
	page := `<html><head><title> Repo Title </title><style>.x{}</style></head>
<body><nav>menu</nav><header>top</header>
<article><h1>README.md</h1><p>LinkUp   is a   social app.</p><script>var x=1;</script></article>
<footer>bye</footer></body></html>`
	title, text, err := ExtractText([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, "Repo Title", title)
	assert.Equal(t, "README.md\nLinkUp is a social app.", text)

	title, _, err = ExtractText([]byte("<p>no title</p>"))
	require.NoError(t, err)
	assert.Equal(t, "No title", title)
}

func newTestScraper(t *testing.T, srvURL string, maxReadme int) *Scraper {
	t.Helper()
	cfg := config.DefaultConfig().Scraper
	cfg.MaxReadmeChars = maxReadme
	s, err := NewScraper(cfg)
	require.NoError(t, err)
	s.resolve = func(link string) string {
		return srvURL + strings.TrimPrefix(link, "https://github.com")
	}
	return s
}

func TestProcessGitHubLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/alice/linkup":
			fmt.Fprintf(w, "<html><body><p>Intro</p><h2>README</h2><p>%s</p></body></html>", strings.Repeat("word ", 100))
		case "/alice/broken":
			w.WriteHeader(http.StatusNotFound)
		default:
			fmt.Fprint(w, "<p>other</p>")
		}
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL, 50)
	sources := s.ProcessGitHubLinks(context.Background(), []string{
		"https://github.com/alice/linkup",
		"https://github.com/alice",
		"https://github.com/alice/broken",
		"https://github.com/alice/four",
	})
	require.Len(t, sources, 1, "最多处理 3 个链接，失败和非仓库链接被跳过")
	assert.Equal(t, "GitHub: alice/linkup", sources[0].Label)
	assert.True(t, strings.HasPrefix(sources[0].Content, "README"))
	assert.LessOrEqual(t, len([]rune(sources[0].Content)), 50)

	assert.Equal(t, "[GitHub: alice/linkup]\n"+sources[0].Content, FormatSources(append(sources, Source{Label: "empty"})))
}

func TestScraperDisabled(t *testing.T) {
	cfg := config.DefaultConfig().Scraper
	cfg.Enabled = false
	s, err := NewScraper(cfg)
	require.NoError(t, err)
	_, _, err = s.ScrapePage(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrScraperDisabled)
	assert.Nil(t, s.ProcessGitHubLinks(context.Background(), []string{"https://github.com/a/b"}))
}

func TestPlanAugmentation(t *testing.T) {
	longCtx := strings.Repeat("x", 900)
	sections := types.Sections{types.SectionProjects: "- bullet line that is long enough\nLinkUp Social Platform\nmore"}

	p := PlanAugmentation("anything", "short", sections, nil, 0)
	assert.Equal(t, Plan{Search: true, Query: "LinkUp Social Platform github", Reason: ReasonInsufficient}, p)

	p = PlanAugmentation("anything", "short", nil, []string{"https://linkedin.com/in/a", "https://github.com/alice/linkup"}, 800)
	assert.Equal(t, "alice/linkup", p.Query, "没有合适的项目标题时使用 GitHub 仓库名")

	p = PlanAugmentation("anything", "short", nil, nil, 800)
	assert.Equal(t, "portfolio projects", p.Query)

	p = PlanAugmentation("Show me your GitHub repo", longCtx, sections, nil, 800)
	assert.Equal(t, Plan{Search: true, Query: "- bullet line that is long enough project details", Reason: ReasonProjectQuestion}, p)

	p = PlanAugmentation("Where did you study?", longCtx, sections, nil, 800)
	assert.False(t, p.Search)
}
