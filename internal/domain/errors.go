package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 记录、服务或集合不存在，调用方自行决定如何处理。
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists 写入时记录已存在且未要求覆盖。
	ErrAlreadyExists = errors.New("already exists")
	// ErrStageOrderViolation 阶段标记违反 ingested ⇒ transformed ⇒ extracted，视为数据损坏。
	ErrStageOrderViolation = errors.New("stage order violation")
	// ErrInvalidCatalogDocument 目录树中存在无法解析或缺少类型的文档，整次入库中止。
	ErrInvalidCatalogDocument = errors.New("invalid catalog document")
	// ErrInvalidStrategy 未知的入库策略。
	ErrInvalidStrategy = errors.New("invalid ingest strategy")
	// ErrUpstreamRequestFailed 源服务或目标服务请求失败（网络错误或非 2xx）。
	ErrUpstreamRequestFailed = errors.New("upstream request failed")
	// ErrUnmappableRecord 源记录无法映射为 STAC 文档。
	ErrUnmappableRecord = errors.New("unmappable record")
	// ErrMissingCredential 目标服务缺少认证 token。
	ErrMissingCredential = errors.New("missing destination credential")
	// ErrCorruptSnapshot 记录快照的格式标记缺失或不匹配。
	ErrCorruptSnapshot = errors.New("corrupt collections snapshot")
)

// StageError 标识某个集合在某个阶段失败。
type StageError struct {
	CollectionID string
	Stage        Stage
	Err          error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for %s: %v", e.Stage, e.CollectionID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// MappingError 说明哪个字段导致映射失败。
type MappingError struct {
	Schema string
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s record: missing field %q", e.Schema, e.Field)
	}
	return fmt.Sprintf("%s record: field %q %s", e.Schema, e.Field, e.Reason)
}

func (e *MappingError) Unwrap() error { return ErrUnmappableRecord }

// HTTPStatusError 保留上游返回的状态码与响应片段。
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *HTTPStatusError) Unwrap() error { return ErrUpstreamRequestFailed }
