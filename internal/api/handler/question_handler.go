package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/processor"
	"portfolio-agent-go/internal/types"
)

// HeaderRequestID 请求 ID 响应头
const HeaderRequestID = "X-Request-ID"

// QuestionService 问答服务
type QuestionService interface {
	Ask(ctx context.Context, question string) (*processor.Answer, error)
	Stats() types.MemoryStats
	ClearMemory(ctx context.Context) error
}

// QuestionRequest POST /api/question 的请求体
type QuestionRequest struct {
	Question string `json:"question"`
}

// QuestionResponse 问答响应
type QuestionResponse struct {
	Question string       `json:"question"`
	Answer   string       `json:"answer"`
	Cached   bool         `json:"cached"`
	Intent   types.Intent `json:"intent"`
}

// QuestionHandler 问答与缓存管理接口
type QuestionHandler struct {
	service QuestionService
	timeout time.Duration
	logger  zerolog.Logger
}

// NewQuestionHandler 创建问答处理器，timeout 为单次问答的超时，0 表示不限
func NewQuestionHandler(service QuestionService, timeout time.Duration, logger zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{service: service, timeout: timeout, logger: logger}
}

// RequestID 为每个请求分配 ID：沿用客户端传入的值，否则生成新的 UUID
func RequestID() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		id := strings.TrimSpace(ctx.Request.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set("request_id", id)
		ctx.Response.Header.Set(HeaderRequestID, id)
		ctx.Next(c)
	}
}

func (h *QuestionHandler) requestLogger(ctx *app.RequestContext) zerolog.Logger {
	return h.logger.With().Str("request_id", ctx.GetString("request_id")).Logger()
}

// HandleQuestionGet GET /api/question?question=...
func (h *QuestionHandler) HandleQuestionGet(c context.Context, ctx *app.RequestContext) {
	h.answer(c, ctx, ctx.Query("question"))
}

// HandleQuestionPost POST /api/question {"question": "..."}
func (h *QuestionHandler) HandleQuestionPost(c context.Context, ctx *app.RequestContext) {
	var req QuestionRequest
	if err := ctx.BindJSON(&req); err != nil {
		logger := h.requestLogger(ctx)
		logger.Warn().Err(err).Msg("请求体不是合法的JSON")
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "invalid JSON body"})
		return
	}
	h.answer(c, ctx, req.Question)
}

func (h *QuestionHandler) answer(c context.Context, ctx *app.RequestContext, question string) {
	logger := h.requestLogger(ctx)
	question = strings.TrimSpace(question)
	if question == "" {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "question is required"})
		return
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, h.timeout)
		defer cancel()
	}

	ans, err := h.service.Ask(c, question)
	switch {
	case err == nil:
	case errors.Is(err, processor.ErrGenerationFailed) && ans != nil:
		// 模型调用失败时仍返回面向用户的提示
		logger.Warn().Err(err).Msg("回答生成失败，返回提示信息")
	case errors.Is(err, processor.ErrEmptyQuestion):
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "question is required"})
		return
	default:
		logger.Error().Err(err).Msg("处理问题失败")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "failed to answer question"})
		return
	}

	logger.Info().Bool("cached", ans.Cached).Str("intent", string(ans.Intent)).Msg("问题已回答")
	ctx.JSON(consts.StatusOK, QuestionResponse{
		Question: ans.Question,
		Answer:   ans.Answer,
		Cached:   ans.Cached,
		Intent:   ans.Intent,
	})
}

// HandleMemoryStats GET /api/memory/stats
func (h *QuestionHandler) HandleMemoryStats(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, h.service.Stats())
}

// HandleMemoryClear DELETE /api/memory
func (h *QuestionHandler) HandleMemoryClear(c context.Context, ctx *app.RequestContext) {
	if err := h.service.ClearMemory(c); err != nil {
		logger := h.requestLogger(ctx)
		logger.Error().Err(err).Msg("清空问答缓存失败")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "failed to clear memory"})
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"status": "cleared"})
}

// HandleHealth GET /api/health
func (h *QuestionHandler) HandleHealth(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, utils.H{"status": "ok", "memory": h.service.Stats()})
}
