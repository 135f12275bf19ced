package textproc

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]()]+`)

// LinkCategories 按域名分类后的链接
type LinkCategories struct {
	GitHub   []string `json:"github"`
	LinkedIn []string `json:"linkedin"`
	Other    []string `json:"other"`
}

// ExtractLinks 提取文本中所有 http/https 链接，去掉末尾标点并去重
func ExtractLinks(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range urlPattern.FindAllString(text, -1) {
		link := strings.TrimRight(raw, ".,;:!?)")
		if link == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}

// CategorizeLinks 将链接按 GitHub / LinkedIn / 其他 分类
func CategorizeLinks(links []string) LinkCategories {
	var cats LinkCategories
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			cats.Other = append(cats.Other, link)
			continue
		}
		host := strings.ToLower(u.Host)
		switch {
		case strings.Contains(host, "github.com"):
			cats.GitHub = append(cats.GitHub, link)
		case strings.Contains(host, "linkedin.com"):
			cats.LinkedIn = append(cats.LinkedIn, link)
		default:
			cats.Other = append(cats.Other, link)
		}
	}
	return cats
}

// GitHubRepoSlug 从 GitHub 链接中取出 owner/repo，不是仓库链接时返回空串
func GitHubRepoSlug(link string) string {
	u, err := url.Parse(link)
	if err != nil || !strings.Contains(strings.ToLower(u.Host), "github.com") {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "/" + strings.TrimSuffix(parts[1], ".git")
}
