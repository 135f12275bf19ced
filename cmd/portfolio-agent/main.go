package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/spf13/pflag"

	"portfolio-agent-go/internal/api/handler"
	"portfolio-agent-go/internal/api/router"
	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/logger"
	"portfolio-agent-go/internal/processor"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/tracing"
)

var (
	version     = "1.0.0"           //nolint:gochecknoglobals
	serviceName = "portfolio-agent" //nolint:gochecknoglobals
)

func main() {
	var (
		configPath  string
		address     string
		docsDir     string
		writeSample string
		showVersion bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径（为空时自动查找 config.yaml）")
	pflag.StringVarP(&address, "addr", "a", "", "监听地址，覆盖 server.address")
	pflag.StringVarP(&docsDir, "docs", "d", "", "简历资料目录，覆盖 corpus.docs_dir")
	pflag.StringVar(&writeSample, "write-sample-config", "", "把默认配置写入指定文件后退出")
	pflag.BoolVarP(&showVersion, "version", "v", false, "显示版本信息")
	pflag.Parse()

	if showVersion {
		os.Stdout.WriteString(serviceName + " " + version + "\n")
		return
	}
	if writeSample != "" {
		if err := config.CreateSampleConfig(writeSample); err != nil {
			os.Stderr.WriteString(err.Error() + "\n")
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	if address != "" {
		cfg.Server.Address = address
	}
	if docsDir != "" {
		cfg.Corpus.DocsDir = docsDir
	}

	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	hlog.SetLogger(hertzadapter.From(logger.Component("hertz")))
	log := logger.Component("main")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("配置校验失败")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var shutdownTracing tracing.ShutdownFunc
	if cfg.Tracing.Enabled {
		shutdownTracing, err = tracing.InitProvider(ctx, tracing.ProviderConfig{
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("初始化链路追踪失败")
		}
		log.Info().Str("endpoint", cfg.Tracing.Endpoint).Msg("链路追踪已启用")
	}

	storageManager, err := storage.NewStorage(ctx, cfg, logger.Component("storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close(log)

	if err := processor.SyncCorpus(ctx, cfg, storageManager, log); err != nil {
		log.Fatal().Err(err).Msg("同步简历资料失败")
	}

	service, err := processor.Build(ctx, cfg, storageManager, logger.Component("processor"))
	if err != nil {
		if errors.Is(err, processor.ErrCorpusEmpty) {
			log.Fatal().Err(err).Str("docs_dir", cfg.Corpus.DocsDir).Msg("资料目录中没有可用的简历内容")
		}
		log.Fatal().Err(err).Msg("初始化问答服务失败")
	}

	questionHandler := handler.NewQuestionHandler(service,
		config.GetDuration(cfg.Server.RequestTimeout, 60*time.Second),
		logger.Component("api"))
	h := router.NewServer(cfg.Server, questionHandler, cfg.Tracing.Enabled)

	go func() {
		log.Info().Str("address", cfg.Server.Address).Str("version", version).Msg("HTTP 服务器启动中")
		if err := h.Run(); err != nil {
			log.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务器关闭失败")
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("刷新链路追踪数据失败")
		}
	}
	log.Info().Msg("优雅退出完成")
}
