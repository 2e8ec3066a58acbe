package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
)

// wfsExtractor 对接 OGC API Features 风格的要素服务。
type wfsExtractor struct {
	opts Options
}

func newWFSExtractor(opts Options) Extractor {
	return &wfsExtractor{opts: opts}
}

type wfsCollection struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FeaturesOf 返回 GeoJSON FeatureCollection 分页中的要素。
func FeaturesOf(page []byte) ([]json.RawMessage, error) {
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(page, &fc); err != nil {
		return nil, fmt.Errorf("解析要素分页失败: %w", err)
	}
	return fc.Features, nil
}

func (e *wfsExtractor) endpoint(base string, parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")
}

func (e *wfsExtractor) ListCollections(ctx context.Context, svc record.ServiceRef) ([]record.CollectionRecord, error) {
	body, err := e.opts.Client.GetJSON(ctx, e.endpoint(svc.URL, "collections"), ServiceParams(svc.ExtraParams))
	if err != nil {
		return nil, fmt.Errorf("查询要素集合失败: %w", err)
	}
	var resp struct {
		Collections []wfsCollection `json:"collections"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析要素集合失败: %w", err)
	}
	target := ""
	if len(svc.Targets) > 0 {
		target = strings.ToLower(svc.Targets[0])
	}
	records := make([]record.CollectionRecord, 0, len(resp.Collections))
	for _, c := range resp.Collections {
		if c.ID == "" {
			continue
		}
		records = append(records, record.CollectionRecord{
			ID:           domain.MakeCollectionID(c.ID),
			SourceID:     c.ID,
			Service:      svc,
			SourceSchema: ServiceTypeWFS,
			Target:       target,
		})
	}
	return records, nil
}

func (e *wfsExtractor) Extract(ctx context.Context, rec record.CollectionRecord, outputDir string, overwrite bool) ([]string, error) {
	nativeID := rec.SourceID
	if nativeID == "" {
		nativeID = rec.ID
	}
	dir := filepath.Join(outputDir, rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建抽取目录失败: %w", err)
	}

	metaPath := filepath.Join(dir, rec.ID+".json")
	if _, err := os.Stat(metaPath); overwrite || err != nil {
		body, err := e.opts.Client.GetJSON(ctx, e.endpoint(rec.Service.URL, "collections", nativeID), ServiceParams(rec.Service.ExtraParams))
		if err != nil {
			return nil, fmt.Errorf("查询集合元数据失败: %w", err)
		}
		if err := os.WriteFile(metaPath, body, 0o644); err != nil {
			return nil, fmt.Errorf("写入集合元数据失败: %w", err)
		}
	}
	files := []string{metaPath}

	limit := e.opts.QueryLimit
	itemsURL := e.endpoint(rec.Service.URL, "collections", nativeID, "items")
	for offset, page := 0, 1; e.opts.ExtractLimit <= 0 || offset < e.opts.ExtractLimit; offset, page = offset+limit, page+1 {
		pagePath := filepath.Join(dir, fmt.Sprintf("%s_%03d.json", rec.ID, page))
		if !overwrite {
			if data, err := os.ReadFile(pagePath); err == nil {
				features, err := FeaturesOf(data)
				if err != nil {
					return nil, err
				}
				files = append(files, pagePath)
				if len(features) < limit {
					break
				}
				continue
			}
		}
		params := ServiceParams(rec.Service.ExtraParams)
		params.Set("limit", strconv.Itoa(limit))
		params.Set("offset", strconv.Itoa(offset))
		body, err := e.opts.Client.GetJSON(ctx, itemsURL, params)
		if err != nil {
			return nil, fmt.Errorf("查询要素失败 offset=%d: %w", offset, err)
		}
		features, err := FeaturesOf(body)
		if err != nil {
			return nil, err
		}
		if len(features) == 0 {
			break
		}
		if err := os.WriteFile(pagePath, body, 0o644); err != nil {
			return nil, fmt.Errorf("写入分页文件失败: %w", err)
		}
		files = append(files, pagePath)
		e.opts.Logger.Debug("extracted page", zap.String("collection", rec.ID), zap.Int("offset", offset), zap.Int("features", len(features)))
		if len(features) < limit {
			break
		}
	}
	return files, nil
}
