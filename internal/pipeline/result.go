package pipeline

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
)

// StageResult 是单个阶段的执行结果。
type StageResult struct {
	Stage    domain.Stage  `json:"stage"`
	Status   domain.Status `json:"status"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// CollectionResult 是单个集合一次 Run 的结果。
type CollectionResult struct {
	CollectionID string                  `json:"collection_id"`
	Stages       []StageResult           `json:"stages"`
	Record       record.CollectionRecord `json:"record"`
	Err          error                   `json:"-"`
}

// Status 汇总集合结果：任一阶段失败为 failed，全部跳过为 skipped。
func (r CollectionResult) Status() domain.Status {
	if r.Err != nil {
		return domain.StatusFailed
	}
	for _, s := range r.Stages {
		if s.Status == domain.StatusSucceeded {
			return domain.StatusSucceeded
		}
	}
	return domain.StatusSkipped
}

// Error 返回错误文本，便于序列化。
func (r CollectionResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// BatchResult 是 ProcessAll 的结果，每个被选中的集合各一条。
type BatchResult struct {
	Results []CollectionResult `json:"results"`
}

// Count 统计某个状态的集合数。
func (b BatchResult) Count(status domain.Status) int {
	n := 0
	for _, r := range b.Results {
		if r.Status() == status {
			n++
		}
	}
	return n
}

// Err 汇总失败集合的错误。
func (b BatchResult) Err() error {
	var errs *multierror.Error
	for _, r := range b.Results {
		if r.Err != nil {
			errs = multierror.Append(errs, r.Err)
		}
	}
	return errs.ErrorOrNil()
}
