package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"pdssp-crawler/internal/domain"
)

// accessor 描述一个源字段到 STAC 属性的映射。
type accessor struct {
	src      string
	dst      string
	read     func(doc map[string]any, key string) (any, bool)
	required bool
}

// apply 依次执行映射表，必填字段缺失时返回 MappingError。
func apply(schema string, doc map[string]any, table []accessor, out map[string]any) error {
	for _, a := range table {
		v, ok := a.read(doc, a.src)
		if !ok {
			if a.required {
				return &domain.MappingError{Schema: schema, Field: a.src}
			}
			continue
		}
		out[a.dst] = v
	}
	return nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode record: %v: %w", err, domain.ErrUnmappableRecord)
	}
	if doc == nil {
		return nil, fmt.Errorf("empty record: %w", domain.ErrUnmappableRecord)
	}
	return doc, nil
}

func readString(doc map[string]any, key string) (any, bool) {
	return stringField(doc, key)
}

func stringField(doc map[string]any, key string) (string, bool) {
	switch v := doc[key].(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case json.Number:
		return v.String(), true
	}
	return "", false
}

func readFloat(doc map[string]any, key string) (any, bool) {
	return floatField(doc, key)
}

func floatField(doc map[string]any, key string) (float64, bool) {
	switch v := doc[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// readList 把单值字段包装为列表，例如 instruments。
func readList(doc map[string]any, key string) (any, bool) {
	s, ok := stringField(doc, key)
	if !ok {
		return nil, false
	}
	return []string{s}, true
}

// normalizeLongitude 把 0~360 经度转换为 -180~180。
func normalizeLongitude(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	return lon
}
