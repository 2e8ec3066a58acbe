package ingest

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"pdssp-crawler/internal/stac"
)

// NodeState 是单个节点在一次入库中的最终状态。
type NodeState string

const (
	NodePublished     NodeState = "published"
	NodeUpdated       NodeState = "updated"
	NodeSkippedExists NodeState = "skipped_exists"
	NodeFailed        NodeState = "failed"
	NodeDeduped       NodeState = "deduped"
	// NodeExcluded 表示节点类型不在本次策略内，未推送。
	NodeExcluded NodeState = "excluded"
)

// NodeOutcome 记录一个节点的处理结果。
type NodeOutcome struct {
	Kind       stac.Kind `json:"kind"`
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	ParentID   string    `json:"parent_id,omitempty"`
	ParentKind stac.Kind `json:"parent_kind,omitempty"`
	State      NodeState `json:"state"`
	URL        string    `json:"url,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	Err        error     `json:"-"`
}

// Outcome 是一次 Ingest 调用的结果，节点按访问顺序排列。
type Outcome struct {
	RunID    string        `json:"run_id"`
	Strategy Strategy      `json:"strategy"`
	Root     NodeOutcome   `json:"root"`
	Nodes    []NodeOutcome `json:"nodes"`
}

// Count 统计某个状态的节点数。
func (o Outcome) Count(state NodeState) int {
	n := 0
	for _, node := range o.Nodes {
		if node.State == state {
			n++
		}
	}
	return n
}

// States 返回按访问顺序排列的节点状态。
func (o Outcome) States() []NodeState {
	states := make([]NodeState, 0, len(o.Nodes))
	for _, node := range o.Nodes {
		states = append(states, node.State)
	}
	return states
}

// Err 汇总失败节点，没有失败时返回 nil。
func (o Outcome) Err() error {
	var errs *multierror.Error
	for _, node := range o.Nodes {
		if node.State == NodeFailed {
			errs = multierror.Append(errs, fmt.Errorf("%s %s: %w", node.Kind, node.ID, node.Err))
		}
	}
	return errs.ErrorOrNil()
}
