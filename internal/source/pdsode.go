package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

// FlexString 兼容 ODE 接口中时而为字符串、时而为数字的字段。
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(string(data))
	return nil
}

// Int 返回整数值，无法解析时返回 0 和 false。
func (f FlexString) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(f)))
	return n, err == nil
}

// IIPTSet 是 ODE 的 instrument host / instrument / product type 组合，对应一个集合。
type IIPTSet struct {
	ODEMetaDB       string          `json:"ODEMetaDB"`
	IHID            string          `json:"IHID"`
	IHName          string          `json:"IHName"`
	IID             string          `json:"IID"`
	IName           string          `json:"IName"`
	PT              string          `json:"PT"`
	PTName          string          `json:"PTName"`
	DataSetID       string          `json:"DataSetId"`
	NumberProducts  FlexString      `json:"NumberProducts"`
	ValidFootprints string          `json:"ValidFootprints"`
	ValidTargets    json.RawMessage `json:"ValidTargets"`
}

// Targets 返回 ODEMetaDB 加上 ValidTargets 中声明的目标天体。
func (s IIPTSet) Targets() []string {
	targets := []string{}
	if s.ODEMetaDB != "" {
		targets = append(targets, s.ODEMetaDB)
	}
	var vt struct {
		ValidTarget json.RawMessage `json:"ValidTarget"`
	}
	if len(s.ValidTargets) == 0 || json.Unmarshal(s.ValidTargets, &vt) != nil {
		return targets
	}
	for _, raw := range OneOrMany(vt.ValidTarget) {
		var t string
		if json.Unmarshal(raw, &t) == nil && t != "" {
			targets = append(targets, t)
		}
	}
	return targets
}

// SourceID 是集合在 ODE 中的原生标识。
func (s IIPTSet) SourceID() string {
	return s.IHID + "/" + s.IID + "/" + s.PT
}

// OneOrMany 兼容单个对象与对象数组两种编码。
func OneOrMany(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil
		}
		return list
	}
	return []json.RawMessage{raw}
}

type odeIIPTResponse struct {
	ODEResults struct {
		Status   string `json:"Status"`
		Error    string `json:"Error"`
		IIPTSets struct {
			IIPTSet json.RawMessage `json:"IIPTSet"`
		} `json:"IIPTSets"`
	} `json:"ODEResults"`
}

type odeProductResponse struct {
	ODEResults struct {
		Status   string `json:"Status"`
		Error    string `json:"Error"`
		Products struct {
			Product json.RawMessage `json:"Product"`
		} `json:"Products"`
	} `json:"ODEResults"`
}

// ProductsOf 返回 ODE 产品查询分页中的产品记录。
func ProductsOf(page []byte) ([]json.RawMessage, error) {
	var resp odeProductResponse
	if err := json.Unmarshal(page, &resp); err != nil {
		return nil, fmt.Errorf("解析 ODE 产品分页失败: %w", err)
	}
	if strings.EqualFold(resp.ODEResults.Status, "ERROR") {
		return nil, fmt.Errorf("ODE error: %s: %w", resp.ODEResults.Error, domain.ErrUpstreamRequestFailed)
	}
	return OneOrMany(resp.ODEResults.Products.Product), nil
}

// pdsodeExtractor 对接 PDS Orbital Data Explorer REST API。
type pdsodeExtractor struct {
	opts Options
}

func newPDSODEExtractor(opts Options) Extractor {
	return &pdsodeExtractor{opts: opts}
}

func (e *pdsodeExtractor) querySets(ctx context.Context, svc record.ServiceRef, filter url.Values) ([]IIPTSet, error) {
	params := ServiceParams(svc.ExtraParams)
	params.Set("query", "iipt")
	params.Set("output", "JSON")
	for k, vs := range filter {
		params[k] = vs
	}
	body, err := e.opts.Client.GetJSON(ctx, svc.URL, params)
	if err != nil {
		return nil, fmt.Errorf("查询 ODE IIPT 失败: %w", err)
	}
	var resp odeIIPTResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析 ODE IIPT 响应失败: %w", err)
	}
	if strings.EqualFold(resp.ODEResults.Status, "ERROR") {
		return nil, fmt.Errorf("ODE error: %s: %w", resp.ODEResults.Error, domain.ErrUpstreamRequestFailed)
	}
	raws := OneOrMany(resp.ODEResults.IIPTSets.IIPTSet)
	sets := make([]IIPTSet, 0, len(raws))
	for _, raw := range raws {
		var set IIPTSet
		if err := json.Unmarshal(raw, &set); err != nil {
			e.opts.Logger.Warn("skip undecodable IIPT set", zap.Error(err))
			continue
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func (e *pdsodeExtractor) ListCollections(ctx context.Context, svc record.ServiceRef) ([]record.CollectionRecord, error) {
	sets, err := e.querySets(ctx, svc, nil)
	if err != nil {
		return nil, err
	}
	records := make([]record.CollectionRecord, 0, len(sets))
	for _, set := range sets {
		id := domain.MakeCollectionID(set.IHID, set.IID, set.PT)
		if set.ValidFootprints != "" && set.ValidFootprints != "T" {
			continue
		}
		n, ok := set.NumberProducts.Int()
		if !ok {
			e.opts.Logger.Info("missing NumberProducts, collection not registered", zap.String("collection", id))
			continue
		}
		target := ""
		if targets := set.Targets(); len(targets) > 0 {
			target = strings.ToLower(targets[0])
		}
		records = append(records, record.CollectionRecord{
			ID:           id,
			SourceID:     set.SourceID(),
			Service:      svc,
			SourceSchema: ServiceTypePDSODE,
			Target:       target,
			ProductCount: n,
		})
	}
	return records, nil
}

func (e *pdsodeExtractor) nativeID(rec record.CollectionRecord) (ihid, iid, pt string, err error) {
	parts := strings.Split(rec.SourceID, "/")
	if len(parts) != 3 {
		parts = strings.SplitN(rec.ID, "_", 3)
	}
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("cannot derive IHID/IID/PT from %s: %w", rec.ID, domain.ErrNotFound)
	}
	return parts[0], parts[1], parts[2], nil
}

func (e *pdsodeExtractor) Extract(ctx context.Context, rec record.CollectionRecord, outputDir string, overwrite bool) ([]string, error) {
	ihid, iid, pt, err := e.nativeID(rec)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(outputDir, rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建抽取目录失败: %w", err)
	}

	metaPath := filepath.Join(dir, rec.ID+".json")
	set, err := e.collectionMetadata(ctx, rec, metaPath, ihid, iid, pt, overwrite)
	if err != nil {
		return nil, err
	}
	files := []string{metaPath}

	total := rec.ProductCount
	if n, ok := set.NumberProducts.Int(); ok {
		total = n
	}
	if e.opts.ExtractLimit > 0 && total > e.opts.ExtractLimit {
		total = e.opts.ExtractLimit
	}
	target := strings.ToLower(set.ODEMetaDB)
	if target == "" {
		target = rec.Target
	}

	limit := e.opts.QueryLimit
	for offset, page := 0, 1; offset < total; offset, page = offset+limit, page+1 {
		pagePath := filepath.Join(dir, fmt.Sprintf("%s_%03d.json", rec.ID, page))
		if !overwrite {
			if _, err := os.Stat(pagePath); err == nil {
				files = append(files, pagePath)
				continue
			}
		}
		params := ServiceParams(rec.Service.ExtraParams)
		params.Set("target", target)
		params.Set("query", "product")
		params.Set("results", "copmf")
		params.Set("output", "JSON")
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(limit))
		params.Set("ihid", ihid)
		params.Set("iid", iid)
		params.Set("pt", pt)

		body, err := e.opts.Client.GetJSON(ctx, rec.Service.URL, params)
		if err != nil {
			return nil, fmt.Errorf("查询 ODE 产品失败 offset=%d: %w", offset, err)
		}
		products, err := ProductsOf(body)
		if err != nil {
			return nil, err
		}
		if len(products) == 0 {
			break
		}
		if err := os.WriteFile(pagePath, body, 0o644); err != nil {
			return nil, fmt.Errorf("写入分页文件失败: %w", err)
		}
		files = append(files, pagePath)
		e.opts.Logger.Debug("extracted page", zap.String("collection", rec.ID), zap.Int("offset", offset), zap.Int("products", len(products)))
	}
	return files, nil
}

func (e *pdsodeExtractor) collectionMetadata(ctx context.Context, rec record.CollectionRecord, path, ihid, iid, pt string, overwrite bool) (IIPTSet, error) {
	var set IIPTSet
	if !overwrite {
		data, err := os.ReadFile(path)
		if err == nil && json.Unmarshal(data, &set) == nil {
			return set, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return set, fmt.Errorf("读取集合元数据失败: %w", err)
		}
	}
	sets, err := e.querySets(ctx, rec.Service, url.Values{"ihid": {ihid}, "iid": {iid}, "pt": {pt}})
	if err != nil {
		return set, err
	}
	found := false
	for _, s := range sets {
		if s.IHID == ihid && s.IID == iid && s.PT == pt {
			set, found = s, true
			break
		}
	}
	if !found {
		return set, fmt.Errorf("IIPT set %s/%s/%s: %w", ihid, iid, pt, domain.ErrNotFound)
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return set, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return set, fmt.Errorf("写入集合元数据失败: %w", err)
	}
	return set, nil
}
