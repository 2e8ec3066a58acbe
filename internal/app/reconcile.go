package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
)

// ReconcileFlow 把新发现的集合追加进台账，已有记录及其阶段状态保持不变。
type ReconcileFlow struct {
	Flow *InitFlow
}

// Run 返回新增的集合数。
func (f *ReconcileFlow) Run(ctx context.Context) (int, error) {
	if f.Flow == nil || f.Flow.Store == nil || f.Flow.Discovery == nil {
		return 0, fmt.Errorf("对账依赖未注入完整")
	}
	logger := f.Flow.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	records, listErr := f.Flow.Discovery.Collections(ctx)
	added := 0
	for _, rec := range records {
		err := f.Flow.Store.Put(ctx, rec, false)
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("写入集合 %s 失败: %w", rec.ID, err)
		}
		added++
	}
	logger.Info("集合台账对账完成", zap.Int("discovered", len(records)), zap.Int("added", added))
	return added, listErr
}
