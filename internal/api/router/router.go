package router

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/hertz-contrib/cors"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"portfolio-agent-go/internal/api/handler"
	appconfig "portfolio-agent-go/internal/config"
)

// NewServer 创建 Hertz 服务并注册中间件与路由。withTracing 为 true 时接入 OpenTelemetry。
func NewServer(cfg appconfig.ServerConfig, questionHandler *handler.QuestionHandler, withTracing bool, opts ...config.Option) *server.Hertz {
	opts = append([]config.Option{
		server.WithHostPorts(cfg.Address),
		server.WithHandleMethodNotAllowed(true),
	}, opts...)

	var tracingCfg *hertztracing.Config
	if withTracing {
		tracer, c := hertztracing.NewServerTracer()
		opts = append(opts, tracer)
		tracingCfg = c
	}

	h := server.New(opts...)
	if tracingCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracingCfg))
	}
	h.Use(CORS(cfg), handler.RequestID(), accessLog())

	RegisterRoutes(h, questionHandler)
	return h
}

// CORS 按配置生成跨域中间件，预检请求直接返回
func CORS(cfg appconfig.ServerConfig) app.HandlerFunc {
	c := cors.Config{
		AllowMethods:  splitList(cfg.CORSAllowMethods),
		AllowHeaders:  splitList(cfg.CORSAllowHeaders),
		ExposeHeaders: []string{handler.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	origins := splitList(cfg.CORSAllowOrigin)
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

func accessLog() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		hlog.CtxInfof(c, "%s %s -> %d (%s) request_id=%s",
			string(ctx.Method()), string(ctx.Path()), ctx.Response.StatusCode(),
			time.Since(start), ctx.GetString("request_id"))
	}
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, questionHandler *handler.QuestionHandler) {
	api := h.Group("/api")

	api.GET("/question", questionHandler.HandleQuestionGet)
	api.POST("/question", questionHandler.HandleQuestionPost)

	api.GET("/memory/stats", questionHandler.HandleMemoryStats)
	api.DELETE("/memory", questionHandler.HandleMemoryClear)

	// 添加健康检查
	api.GET("/health", questionHandler.HandleHealth)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
