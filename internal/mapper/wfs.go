package mapper

import (
	"encoding/json"
	"fmt"
	"math"

	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/source"
	"pdssp-crawler/internal/stac"
)

const schemaWFS = source.ServiceTypeWFS

type wfsMapper struct{}

func (wfsMapper) Collection(rec record.CollectionRecord, raw []byte) (map[string]any, error) {
	meta, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	title, ok := stringField(meta, "title")
	if !ok {
		title = rec.ID
	}
	description, _ := stringField(meta, "description")
	if description == "" {
		description = title
	}
	doc := stac.NewCollectionDocument(rec.ID, title, description, rec.StacExtensions)
	if extent, ok := meta["extent"].(map[string]any); ok {
		doc["extent"] = extent
	}
	if rec.Target != "" {
		doc["summaries"] = map[string]any{"ssys:targets": []string{rec.Target}}
	}
	return doc, nil
}

func (wfsMapper) Records(page []byte) ([]json.RawMessage, error) {
	return source.FeaturesOf(page)
}

func (wfsMapper) Item(rec record.CollectionRecord, raw json.RawMessage) (map[string]any, error) {
	feature, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	id, ok := stringField(feature, "id")
	if !ok {
		return nil, &domain.MappingError{Schema: schemaWFS, Field: "id"}
	}
	geometry, ok := feature["geometry"].(map[string]any)
	if !ok {
		return nil, &domain.MappingError{Schema: schemaWFS, Field: "geometry"}
	}
	bbox, err := geometryBBox(geometry)
	if err != nil {
		return nil, &domain.MappingError{Schema: schemaWFS, Field: "geometry", Reason: err.Error()}
	}

	props := map[string]any{}
	if src, ok := feature["properties"].(map[string]any); ok {
		for k, v := range src {
			props[k] = v
		}
	}
	if _, ok := props["datetime"]; !ok {
		props["datetime"] = nil
	}
	if rec.Target != "" {
		props["ssys:targets"] = []string{rec.Target}
	}
	doc := stac.NewItemDocument(id, rec.ID, geometry, bbox, props)
	if len(rec.StacExtensions) > 0 {
		doc["stac_extensions"] = rec.StacExtensions
	}
	return doc, nil
}

// geometryBBox 遍历 GeoJSON 坐标数组计算外包框。
func geometryBBox(geometry map[string]any) ([]float64, error) {
	west, south := math.Inf(1), math.Inf(1)
	east, north := math.Inf(-1), math.Inf(-1)
	var visit func(v any) error
	visit = func(v any) error {
		list, ok := v.([]any)
		if !ok {
			return fmt.Errorf("coordinates must be arrays")
		}
		if len(list) >= 2 {
			if _, isArr := list[0].([]any); !isArr {
				x, okX := toFloat(list[0])
				y, okY := toFloat(list[1])
				if !okX || !okY {
					return fmt.Errorf("invalid position")
				}
				west, east = math.Min(west, x), math.Max(east, x)
				south, north = math.Min(south, y), math.Max(north, y)
				return nil
			}
		}
		for _, child := range list {
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(geometry["coordinates"]); err != nil {
		return nil, err
	}
	if math.IsInf(west, 1) {
		return nil, fmt.Errorf("no positions")
	}
	return []float64{west, south, east, north}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	}
	return 0, false
}
