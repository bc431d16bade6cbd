package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Code 表示语料处理中的失败原因代码，既用于致命错误也用于单个切片的结果
type Code string

const (
	// EMPTY_INPUT 输入集合为空（无音频、无切片文件）
	EMPTY_INPUT Code = "empty_input"

	// CORPUS_MISSING 语料文档不存在
	CORPUS_MISSING Code = "corpus_missing"

	// CORPUS_MALFORMED 语料文档 JSON 无法解析
	CORPUS_MALFORMED Code = "corpus_malformed"

	// CORPUS_EXISTS 创建时语料文档已存在
	CORPUS_EXISTS Code = "corpus_exists"

	// RUN_MISMATCH 分段时活动帧起止数量不一致
	RUN_MISMATCH Code = "run_mismatch"

	// UNKNOWN_CHUNK 合并了创建时不存在的切片 ID
	UNKNOWN_CHUNK Code = "unknown_chunk"

	// INVALID_CONFIG 配置校验失败
	INVALID_CONFIG Code = "invalid_config"

	// UNSUPPORTED_FORMAT 不支持的音频扩展名
	UNSUPPORTED_FORMAT Code = "unsupported_format"

	// DECODE_FAILED 音频解码失败
	DECODE_FAILED Code = "decode_failed"

	// ENCODE_FAILED 切片编码失败
	ENCODE_FAILED Code = "encode_failed"

	// EMPTY_SPAN 切片采样区间为空
	EMPTY_SPAN Code = "empty_span"

	// TRANSCRIBE_FAILED 转写后端调用失败
	TRANSCRIBE_FAILED Code = "transcribe_failed"

	// CIRCUIT_OPEN 熔断器打开且无可用降级后端
	CIRCUIT_OPEN Code = "circuit_open"

	// NO_SPEECH 后端未识别出语音
	NO_SPEECH Code = "no_speech"

	// NO_TRANSCRIPT 对齐时记录没有 asr 字段
	NO_TRANSCRIPT Code = "no_transcript"

	// NO_MATCH 模糊搜索在上限内未找到匹配
	NO_MATCH Code = "no_match"

	// OFFSET_UNRESOLVED 匹配文本无法映射回原文位置
	OFFSET_UNRESOLVED Code = "offset_unresolved"
)

// Error 表示中止整个阶段的致命错误
type Error struct {
	Code      Code      `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现错误链支持
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError 创建新的阶段错误
func NewError(code Code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// CodeOf 返回错误链中第一个 *Error 的代码，没有时返回空字符串
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode 判断错误链中是否包含指定代码
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
