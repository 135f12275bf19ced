package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/logger"
	"portfolio-agent-go/internal/processor"
	"portfolio-agent-go/internal/storage"
)

const usage = `portfolio-chat 根据简历回答问题

用法:
  portfolio-chat [flags] "your question"   回答一个问题后退出
  portfolio-chat [flags]                   进入交互模式（:stats 查看缓存, :clear 清空缓存, :quit 退出）

`

func main() {
	var (
		configPath string
		docsDir    string
		verbose    bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径（为空时自动查找 config.yaml）")
	pflag.StringVarP(&docsDir, "docs", "d", "", "简历资料目录，覆盖 corpus.docs_dir")
	pflag.BoolVar(&verbose, "verbose", false, "输出调试日志")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if docsDir != "" {
		cfg.Corpus.DocsDir = docsDir
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger.Init(logger.Config{Level: level, Format: "pretty", TimeFormat: "15:04:05", Output: "stderr"})
	log := logger.Component("chat")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("配置校验失败")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := storage.NewStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer st.Close(log)

	if err := processor.SyncCorpus(ctx, cfg, st, log); err != nil {
		log.Fatal().Err(err).Msg("同步简历资料失败")
	}
	service, err := processor.Build(ctx, cfg, st, log)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化问答服务失败")
	}

	if pflag.NArg() > 0 {
		question := strings.Join(pflag.Args(), " ")
		if err := ask(ctx, service, question, os.Stdout); err != nil && !errors.Is(err, processor.ErrGenerationFailed) {
			fmt.Fprintf(os.Stderr, "错误: %v\n", err)
			os.Exit(1)
		}
		return
	}
	repl(ctx, service, os.Stdin, os.Stdout)
}

// ask 回答一个问题。模型调用失败时仍打印面向用户的提示
func ask(ctx context.Context, service *processor.PortfolioService, question string, out io.Writer) error {
	ans, err := service.Ask(ctx, question)
	if ans != nil {
		tag := ""
		if ans.Cached {
			tag = " (cached)"
		}
		fmt.Fprintf(out, "%s%s\n", ans.Answer, tag)
	}
	return err
}

func repl(ctx context.Context, service *processor.PortfolioService, in io.Reader, out io.Writer) {
	fmt.Fprintln(out, "Ask me anything about my resume. Commands: :stats, :clear, :quit")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ":quit", ":exit", ":q":
			return
		case ":stats":
			s := service.Stats()
			fmt.Fprintf(out, "memory: %d entries (%d broad, %d narrow)\n", s.Total, s.Broad, s.Narrow)
			continue
		case ":clear":
			if err := service.ClearMemory(ctx); err != nil {
				fmt.Fprintf(out, "错误: %v\n", err)
			} else {
				fmt.Fprintln(out, "memory cleared")
			}
			continue
		}

		if err := ask(ctx, service, line, out); err != nil && !errors.Is(err, processor.ErrGenerationFailed) {
			fmt.Fprintf(out, "错误: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
