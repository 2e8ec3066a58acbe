package stac

// NewCatalogDocument 构造一个空的 Catalog 文档。
func NewCatalogDocument(id, title, description string) map[string]any {
	return map[string]any{
		"type":         string(KindCatalog),
		"stac_version": Version,
		"id":           id,
		"title":        title,
		"description":  description,
		"links":        []any{},
	}
}

// NewCollectionDocument 构造 Collection 文档骨架，extent 由调用方补充。
func NewCollectionDocument(id, title, description string, extensions []string) map[string]any {
	if extensions == nil {
		extensions = []string{}
	}
	return map[string]any{
		"type":            string(KindCollection),
		"stac_version":    Version,
		"stac_extensions": extensions,
		"id":              id,
		"title":           title,
		"description":     description,
		"license":         "proprietary",
		"extent": map[string]any{
			"spatial":  map[string]any{"bbox": [][]float64{{-180, -90, 180, 90}}},
			"temporal": map[string]any{"interval": [][]any{{nil, nil}}},
		},
		"links": []any{},
	}
}

// NewItemDocument 构造 Item（GeoJSON Feature）文档骨架。
func NewItemDocument(id, collection string, geometry map[string]any, bbox []float64, properties map[string]any) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	doc := map[string]any{
		"type":            "Feature",
		"stac_version":    Version,
		"stac_extensions": []string{},
		"id":              id,
		"geometry":        geometry,
		"properties":      properties,
		"assets":          map[string]any{},
		"links":           []any{},
		"collection":      collection,
	}
	if bbox != nil {
		doc["bbox"] = bbox
	}
	return doc
}

// BBoxPolygon 返回 bbox 对应的 GeoJSON 多边形。
func BBoxPolygon(west, south, east, north float64) map[string]any {
	return map[string]any{
		"type": "Polygon",
		"coordinates": [][][]float64{{
			{west, south}, {east, south}, {east, north}, {west, north}, {west, south},
		}},
	}
}
