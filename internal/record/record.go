package record

import (
	"fmt"
	"strings"

	"pdssp-crawler/internal/domain"
)

// ServiceRef 描述产出集合的外部数据目录服务。
type ServiceRef struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type"`
	URL         string         `json:"url"`
	PingURL     string         `json:"ping_url,omitempty"`
	Targets     []string       `json:"ssys:targets,omitempty"`
	ExtraParams map[string]any `json:"extra_params,omitempty"`
}

// CollectionRecord 是集合台账中的一行，按值传递，阶段推进时整体替换。
type CollectionRecord struct {
	ID             string     `json:"collection_id"`
	SourceID       string     `json:"source_id,omitempty"`
	Service        ServiceRef `json:"service"`
	SourceSchema   string     `json:"source_schema,omitempty"`
	Target         string     `json:"target,omitempty"`
	StacExtensions []string   `json:"stac_extensions,omitempty"`
	ProductCount   int        `json:"n_products"`

	Extracted      bool     `json:"extracted"`
	ExtractedFiles []string `json:"extracted_files"`
	Transformed    bool     `json:"transformed"`
	StacPath       string   `json:"stac_dir"`
	Ingested       bool     `json:"ingested"`
	StacURL        string   `json:"stac_url"`
}

// Validate 检查必填字段与阶段单调性。
func (r CollectionRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("collection_id is required")
	}
	if r.Transformed && !r.Extracted {
		return fmt.Errorf("%s: transformed without extracted: %w", r.ID, domain.ErrStageOrderViolation)
	}
	if r.Ingested && !r.Transformed {
		return fmt.Errorf("%s: ingested without transformed: %w", r.ID, domain.ErrStageOrderViolation)
	}
	return nil
}

// WithExtracted 返回抽取完成后的新记录；下游阶段产物随之失效。
func (r CollectionRecord) WithExtracted(files []string) CollectionRecord {
	next := r.clone()
	next.Extracted = true
	next.ExtractedFiles = append([]string(nil), files...)
	next.Transformed, next.StacPath = false, ""
	next.Ingested, next.StacURL = false, ""
	return next
}

// WithTransformed 返回转换完成后的新记录。
func (r CollectionRecord) WithTransformed(stacPath string) CollectionRecord {
	next := r.clone()
	next.Transformed = true
	next.StacPath = stacPath
	next.Ingested, next.StacURL = false, ""
	return next
}

// WithIngested 返回入库完成后的新记录。
func (r CollectionRecord) WithIngested(stacURL string) CollectionRecord {
	next := r.clone()
	next.Ingested = true
	next.StacURL = stacURL
	return next
}

func (r CollectionRecord) clone() CollectionRecord {
	next := r
	next.ExtractedFiles = append([]string(nil), r.ExtractedFiles...)
	next.StacExtensions = append([]string(nil), r.StacExtensions...)
	next.Service.Targets = append([]string(nil), r.Service.Targets...)
	if r.Service.ExtraParams != nil {
		params := make(map[string]any, len(r.Service.ExtraParams))
		for k, v := range r.Service.ExtraParams {
			params[k] = v
		}
		next.Service.ExtraParams = params
	}
	return next
}

// Filter 是各条件的合取，零值字段匹配所有记录。
type Filter struct {
	ID          string
	ServiceType string
	Target      string
	Extracted   *bool
	Transformed *bool
	Ingested    *bool
}

// Match 判断记录是否满足过滤条件。
func (f Filter) Match(r CollectionRecord) bool {
	if f.ID != "" && !strings.Contains(strings.ToLower(r.ID), strings.ToLower(f.ID)) {
		return false
	}
	if f.ServiceType != "" && f.ServiceType != r.Service.Type {
		return false
	}
	if f.Target != "" && !strings.Contains(strings.ToLower(r.Target), strings.ToLower(f.Target)) {
		return false
	}
	if f.Extracted != nil && *f.Extracted != r.Extracted {
		return false
	}
	if f.Transformed != nil && *f.Transformed != r.Transformed {
		return false
	}
	if f.Ingested != nil && *f.Ingested != r.Ingested {
		return false
	}
	return true
}

// Bool 便于构造 Filter 中的三态字段。
func Bool(v bool) *bool { return &v }
