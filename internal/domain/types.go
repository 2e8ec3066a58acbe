package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage 表示单个集合流水线中的一个阶段。
type Stage int

const (
	StageExtract Stage = iota + 1
	StageTransform
	StageIngest
)

func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "extract"
	case StageTransform:
		return "transform"
	case StageIngest:
		return "ingest"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// MarshalText 以阶段名称序列化。
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStage 解析阶段名称。
func ParseStage(name string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "extract":
		return StageExtract, nil
	case "transform":
		return StageTransform, nil
	case "ingest", "":
		return StageIngest, nil
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Status 是每个操作对外可见的结果。
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// NodeRow 是写入血缘图的节点 DTO。
type NodeRow struct {
	Key        string         `json:"key"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
	RunID      string         `json:"run_id"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RelRow 代表血缘图中的一条边。
type RelRow struct {
	StartKey   string         `json:"start_key"`
	EndKey     string         `json:"end_key"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	RunID      string         `json:"run_id"`
}
