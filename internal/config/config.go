package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"portfolio-agent-go/internal/constants"
)

// ErrMissingAPIKey LLM 的 API Key 未配置
var ErrMissingAPIKey = errors.New("llm api key is required (llm.api_key or GROQ_API_KEY)")

// Config 应用程序配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	LLM       LLMConfig       `yaml:"llm"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Memory    MemoryConfig    `yaml:"memory"`
	Redis     RedisConfig     `yaml:"redis"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	MinIO     MinIOConfig     `yaml:"minio"`
	SearchAPI SearchAPIConfig `yaml:"search_api"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Address string `yaml:"address"` // 例如 ":8080"
	// CORS 响应头
	CORSAllowOrigin  string `yaml:"cors_allow_origin"`
	CORSAllowMethods string `yaml:"cors_allow_methods"`
	CORSAllowHeaders string `yaml:"cors_allow_headers"`
	RequestTimeout   string `yaml:"request_timeout"` // 单次问答超时，例如 "60s"
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	Format       string `yaml:"format"`        // json, pretty
	TimeFormat   string `yaml:"time_format"`   // 时间格式
	ReportCaller bool   `yaml:"report_caller"` // 是否报告调用位置
}

// LLMConfig OpenAI 兼容接口（默认 Groq）的配置
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"` // 单次请求超时
	// 速率限制
	QPM           int `yaml:"qpm"`            // 每分钟请求数，0 表示不限
	MaxRetries    int `yaml:"max_retries"`    // 可重试错误的最大重试次数
	RetryWaitMS   int `yaml:"retry_wait_ms"`  // 初始重试等待(毫秒)
	ResponseWords int `yaml:"response_words"` // 回答字数上限（提示词中使用）
}

// CorpusConfig 简历与项目资料来源
type CorpusConfig struct {
	DocsDir          string   `yaml:"docs_dir"`
	ProjectFileNames []string `yaml:"project_file_names"`
	// PrimaryAliases 主项目的名称及别名，小写匹配
	PrimaryAliases []string `yaml:"primary_aliases"`
}

// RetrievalConfig 上下文检索配置
type RetrievalConfig struct {
	ContextBudget       int      `yaml:"context_budget"`         // 上下文字符上限
	AugmentMinContext   int      `yaml:"augment_min_context"`    // 上下文短于该值时尝试联网补充
	TechKeywords        []string `yaml:"tech_keywords"`          // 关键词检索的技术词表
	TruncationMarker    string   `yaml:"truncation_marker"`      // 截断标记
	MemoryHintMaxLength int      `yaml:"memory_hint_max_length"` // 相似历史回答提示的长度
}

// MemoryConfig 相似问答缓存配置
type MemoryConfig struct {
	Backend         string  `yaml:"backend"` // file, redis, mysql, none
	FilePath        string  `yaml:"file_path"`
	MaxEntries      int     `yaml:"max_entries"`
	NarrowThreshold float64 `yaml:"narrow_threshold"`
	BroadThreshold  float64 `yaml:"broad_threshold"`
	MinAnswerWords  int     `yaml:"min_answer_words"` // 回答至少多于该词数才会被复用
	RedisKey        string  `yaml:"redis_key"`        // 为空时使用 app:memory:entries:{subject}
	Subject         string  `yaml:"subject"`          // mysql 中一行对应一个 subject
}

// RedisConfig holds configuration for Redis
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// 连接池设置
	PoolSize     int `yaml:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns"`
	// 超时设置
	DialTimeoutSeconds  int  `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int  `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int  `yaml:"write_timeout_seconds"`
	MaxRetries          int  `yaml:"max_retries"`
	EnableTracing       bool `yaml:"enable_tracing"`
}

// MySQLConfig MySQL配置结构
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// 连接池设置
	MaxIdleConns           int `yaml:"max_idle_conns"`
	MaxOpenConns           int `yaml:"max_open_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
	ConnectTimeoutSeconds  int `yaml:"connect_timeout_seconds"`
	// 日志设置
	LogLevel int `yaml:"log_level"` // gorm 日志级别(1-4)
}

// MinIOConfig MinIO配置结构，启用后启动时把存储桶中的简历资料同步到 docs 目录
type MinIOConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	BucketName      string `yaml:"bucketName"`
	Prefix          string `yaml:"prefix"`
}

// SearchAPIConfig SearchAPI.io 配置
type SearchAPIConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Engine        string `yaml:"engine"`
	MaxResults    int    `yaml:"max_results"`    // 请求的结果数
	ResultsToUse  int    `yaml:"results_to_use"` // 写入上下文的结果数
	SnippetLength int    `yaml:"snippet_length"` // 每条摘要的字符上限
	Timeout       string `yaml:"timeout"`
	// TrackQuota 在 Redis 中按月统计请求数，超过 MonthlyQuota 后不再请求
	TrackQuota   bool `yaml:"track_quota"`
	MonthlyQuota int  `yaml:"monthly_quota"`
}

// ScraperConfig GitHub README 抓取配置
type ScraperConfig struct {
	Enabled        bool   `yaml:"enabled"`
	MaxGitHubLinks int    `yaml:"max_github_links"`
	MaxTextLength  int    `yaml:"max_text_length"`  // 单页正文上限
	MaxReadmeChars int    `yaml:"max_readme_chars"` // 写入补充上下文的 README 上限
	Timeout        string `yaml:"timeout"`
	UserAgent      string `yaml:"user_agent"`
}

// TracingConfig OpenTelemetry 配置
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"` // OTLP gRPC 地址，例如 "localhost:4317"
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoadConfig 从文件加载配置。
// configPath 为空时按搜索路径查找 config.yaml，找不到则使用默认配置。
// 会先加载 .env（若存在），再用环境变量覆盖密钥类配置。
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load() // .env 不存在不是错误

	if configPath == "" {
		configPath = findConfigFile()
	}

	config := createDefaultConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("配置文件不存在: %s", configPath)
			}
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnvOverrides(config)
	config.fillDefaults()
	return config, nil
}

// LoadConfigFromFileOnly 从文件加载配置，不读取 .env 和环境变量
func LoadConfigFromFileOnly(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("必须提供配置文件路径")
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}
	config := createDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.fillDefaults()
	return config, nil
}

func findConfigFile() string {
	searchPaths := []string{
		"config.yaml",
		"configs/config.yaml",
		"../config.yaml",
		"../../config.yaml",
		filepath.Join(os.Getenv("HOME"), ".portfolio-agent", "config.yaml"),
	}
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		searchPaths = append(searchPaths,
			filepath.Join(execDir, "config.yaml"),
			filepath.Join(execDir, "..", "config.yaml"))
	}
	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		config.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		config.LLM.Model = v
	}
	if v := os.Getenv("SEARCHAPI_API_KEY"); v != "" {
		config.SearchAPI.APIKey = v
	} else if v := os.Getenv("SEARCHAPI_KEY"); v != "" {
		config.SearchAPI.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logger.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DOCS_DIR"); v != "" {
		config.Corpus.DocsDir = v
	}
}

// fillDefaults 为 YAML 中显式置零的关键数值补默认值
func (c *Config) fillDefaults() {
	def := createDefaultConfig()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Retrieval.ContextBudget <= 0 {
		c.Retrieval.ContextBudget = def.Retrieval.ContextBudget
	}
	if c.Memory.MaxEntries <= 0 {
		c.Memory.MaxEntries = def.Memory.MaxEntries
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = def.Memory.Backend
	}
	if len(c.Corpus.ProjectFileNames) == 0 {
		c.Corpus.ProjectFileNames = def.Corpus.ProjectFileNames
	}
	if c.LLM.Model == "" {
		c.LLM.Model = def.LLM.Model
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = def.LLM.BaseURL
	}
}

// Validate 检查启动所需的配置
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.Corpus.DocsDir == "" {
		errs = append(errs, errors.New("corpus.docs_dir is required"))
	}
	if c.Memory.NarrowThreshold <= 0 || c.Memory.NarrowThreshold > 1 {
		errs = append(errs, fmt.Errorf("memory.narrow_threshold must be in (0,1], got %v", c.Memory.NarrowThreshold))
	}
	if c.Memory.BroadThreshold <= 0 || c.Memory.BroadThreshold > 1 {
		errs = append(errs, fmt.Errorf("memory.broad_threshold must be in (0,1], got %v", c.Memory.BroadThreshold))
	}
	switch c.Memory.Backend {
	case "file", "redis", "mysql", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown memory.backend %q", c.Memory.Backend))
	}
	return errors.Join(errs...)
}

// 默认配置，与原有常量保持一致
func createDefaultConfig() *Config {
	config := &Config{}

	config.Server.Address = ":8080"
	config.Server.CORSAllowOrigin = "*"
	config.Server.CORSAllowMethods = "GET, POST, DELETE, OPTIONS"
	config.Server.CORSAllowHeaders = "Content-Type"
	config.Server.RequestTimeout = "60s"

	config.Logger.Level = "info"
	config.Logger.Format = "pretty"
	config.Logger.TimeFormat = "2006-01-02 15:04:05"

	config.LLM.BaseURL = "https://api.groq.com/openai/v1"
	config.LLM.Model = "llama-3.1-8b-instant"
	config.LLM.Temperature = 0.2
	config.LLM.MaxTokens = 220
	config.LLM.Timeout = "30s"
	config.LLM.QPM = 30
	config.LLM.MaxRetries = 2
	config.LLM.RetryWaitMS = 500
	config.LLM.ResponseWords = 120

	config.Corpus.DocsDir = "docs"
	config.Corpus.ProjectFileNames = []string{"project.json", "projects.json"}
	config.Corpus.PrimaryAliases = []string{"linkup", "link-up", "link up"}

	config.Retrieval.ContextBudget = 6000
	config.Retrieval.AugmentMinContext = 800
	config.Retrieval.TruncationMarker = "...[truncated]"
	config.Retrieval.MemoryHintMaxLength = 100
	config.Retrieval.TechKeywords = []string{
		"firebase", "react native", "real-time", "realtime", "chat", "auth",
		"next.js", "nextjs", "mongodb", "socket", "typescript", "tailwind",
		"aws", "node", "express", "gemini", "ai", "nodemailer", "shadcn",
	}

	config.Memory.Backend = "file"
	config.Memory.FilePath = "memory.json"
	config.Memory.MaxEntries = 100
	config.Memory.NarrowThreshold = 0.7
	config.Memory.BroadThreshold = 0.6
	config.Memory.MinAnswerWords = 5
	config.Memory.Subject = "default"

	config.Redis.Address = "localhost:6379"
	config.Redis.PoolSize = 10
	config.Redis.MinIdleConns = 2
	config.Redis.DialTimeoutSeconds = 5
	config.Redis.ReadTimeoutSeconds = 3
	config.Redis.WriteTimeoutSeconds = 3
	config.Redis.MaxRetries = 3

	config.MySQL.Host = "localhost"
	config.MySQL.Port = 3306
	config.MySQL.Username = "root"
	config.MySQL.Database = "portfolio_agent"
	config.MySQL.MaxIdleConns = 5
	config.MySQL.MaxOpenConns = 20
	config.MySQL.ConnMaxLifetimeMinutes = 60
	config.MySQL.ConnectTimeoutSeconds = 10
	config.MySQL.LogLevel = 1

	config.MinIO.Endpoint = "localhost:9000"
	config.MinIO.BucketName = "portfolio-docs"

	config.SearchAPI.BaseURL = "https://www.searchapi.io/api/v1/search"
	config.SearchAPI.Engine = "google"
	config.SearchAPI.MaxResults = 3
	config.SearchAPI.ResultsToUse = 2
	config.SearchAPI.SnippetLength = 200
	config.SearchAPI.Timeout = "10s"
	config.SearchAPI.MonthlyQuota = constants.SearchAPIFreeTierLimit

	config.Scraper.Enabled = true
	config.Scraper.MaxGitHubLinks = 3
	config.Scraper.MaxTextLength = 2000
	config.Scraper.MaxReadmeChars = 1000
	config.Scraper.Timeout = "15s"
	config.Scraper.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

	config.Tracing.Endpoint = "localhost:4317"
	config.Tracing.Insecure = true
	config.Tracing.ServiceName = "portfolio-agent"
	config.Tracing.SampleRatio = 1.0

	return config
}

// DefaultConfig 返回一份默认配置的副本，测试与 CLI 可以在此基础上修改
func DefaultConfig() *Config {
	return createDefaultConfig()
}

// CreateSampleConfig 创建一个示例配置文件
func CreateSampleConfig(filePath string) error {
	if _, err := os.Stat(filePath); err == nil {
		return fmt.Errorf("文件 '%s' 已存在，不会覆盖", filePath)
	}
	data, err := yaml.Marshal(createDefaultConfig())
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("写入示例配置文件 '%s' 失败: %w", filePath, err)
	}
	return nil
}

// GetDuration utility to parse duration strings from config
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return d
}
