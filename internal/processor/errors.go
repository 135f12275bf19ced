package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrEmptyQuestion     = errors.New("问题不能为空")
	ErrComponentNotInit  = errors.New("组件未初始化")
	ErrGenerationFailed  = errors.New("生成回答失败")
	ErrCorpusEmpty       = errors.New("没有加载到任何简历内容")
	ErrMemoryPurgeFailed = errors.New("清空问答缓存失败")
)

// AnswerError 包含详细错误信息的自定义错误
type AnswerError struct {
	Op      string
	BaseErr error
	Detail  string
	// Cause 底层错误，可选
	Cause error
}

func (e *AnswerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s): %s", e.BaseErr, e.Op, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s)", e.BaseErr, e.Op)
}

func (e *AnswerError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *AnswerError) Is(target error) bool {
	return errors.Is(e.BaseErr, target) || (e.Cause != nil && errors.Is(e.Cause, target))
}

// NewValidationError 输入校验失败
func NewValidationError(detail string) error {
	return &AnswerError{Op: "validate", BaseErr: ErrEmptyQuestion, Detail: detail}
}

// NewGenerationError 模型调用失败
func NewGenerationError(cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &AnswerError{Op: "generate", BaseErr: ErrGenerationFailed, Detail: detail, Cause: cause}
}

// NewInitError 组件缺失或初始化失败
func NewInitError(component, detail string) error {
	return &AnswerError{Op: "init:" + component, BaseErr: ErrComponentNotInit, Detail: detail}
}
