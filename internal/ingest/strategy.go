package ingest

import (
	"fmt"
	"strings"

	"pdssp-crawler/internal/domain"
)

// Strategy 决定哪些节点类型会被推送到目标服务。
type Strategy string

const (
	// StrategyCatalog 只推送 catalog 与 collection。
	StrategyCatalog Strategy = "catalog"
	// StrategyFeature 只推送 item。
	StrategyFeature Strategy = "feature"
	StrategyBoth    Strategy = "both"
	StrategyNone    Strategy = "none"
)

// ParseStrategy 解析策略名称，空字符串视为 both。
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyBoth, nil
	case StrategyCatalog, StrategyFeature, StrategyBoth, StrategyNone:
		return st, nil
	}
	return "", fmt.Errorf("%q (allowed: catalog, feature, both, none): %w", s, domain.ErrInvalidStrategy)
}

// Validate 检查策略是否合法。
func (s Strategy) Validate() error {
	switch s {
	case StrategyCatalog, StrategyFeature, StrategyBoth, StrategyNone:
		return nil
	}
	return fmt.Errorf("%q: %w", string(s), domain.ErrInvalidStrategy)
}

// Catalogs 表示是否推送 catalog 与 collection。
func (s Strategy) Catalogs() bool { return s == StrategyCatalog || s == StrategyBoth }

// Items 表示是否推送 item。
func (s Strategy) Items() bool { return s == StrategyFeature || s == StrategyBoth }
