package mapper

import (
	"encoding/json"
	"fmt"
	"strings"

	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/source"
	"pdssp-crawler/internal/stac"
)

const schemaPDSODE = source.ServiceTypePDSODE

// pdsodeProperties 是 ODE 产品字段到 Item properties 的映射表。
var pdsodeProperties = []accessor{
	{src: "UTC_start_time", dst: "start_datetime", read: readString, required: true},
	{src: "UTC_stop_time", dst: "end_datetime", read: readString, required: true},
	{src: "Product_creation_time", dst: "created", read: readString},
	{src: "ihid", dst: "platform", read: readString},
	{src: "iid", dst: "instruments", read: readList},
	{src: "Target_name", dst: "ssys:targets", read: readList},
	{src: "Solar_longitude", dst: "ssys:solar_longitude", read: readFloat},
	{src: "Solar_distance", dst: "ssys:solar_distance", read: readFloat},
	{src: "Incidence_angle", dst: "ssys:incidence_angle", read: readFloat},
	{src: "Emission_angle", dst: "ssys:emission_angle", read: readFloat},
	{src: "Phase_angle", dst: "ssys:phase_angle", read: readFloat},
	{src: "Map_resolution", dst: "gsd", read: readFloat},
	{src: "Data_Set_Id", dst: "pds:data_set_id", read: readString},
	{src: "Observation_id", dst: "pds:observation_id", read: readString},
	{src: "ode_id", dst: "ode:id", read: readString},
}

type pdsodeMapper struct{}

func (pdsodeMapper) Collection(rec record.CollectionRecord, raw []byte) (map[string]any, error) {
	var set source.IIPTSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode IIPT set: %v: %w", err, domain.ErrUnmappableRecord)
	}
	if set.IHID == "" || set.IID == "" || set.PT == "" {
		return nil, &domain.MappingError{Schema: schemaPDSODE, Field: "IHID/IID/PT"}
	}
	title := strings.Join(nonEmpty(set.IHName, set.IName, set.PTName), " ")
	if title == "" {
		title = rec.ID
	}
	description := fmt.Sprintf("%s %s %s products", set.IHID, set.IID, set.PT)
	if set.DataSetID != "" {
		description += " (" + set.DataSetID + ")"
	}
	doc := stac.NewCollectionDocument(rec.ID, title, description, rec.StacExtensions)
	targets := set.Targets()
	doc["keywords"] = nonEmpty(set.IHName, set.IName, set.PTName)
	doc["summaries"] = map[string]any{
		"platform":     []string{set.IHID},
		"instruments":  []string{set.IID},
		"ssys:targets": targets,
	}
	if n, ok := set.NumberProducts.Int(); ok {
		doc["ode:number_products"] = n
	}
	return doc, nil
}

func (pdsodeMapper) Records(page []byte) ([]json.RawMessage, error) {
	return source.ProductsOf(page)
}

func (pdsodeMapper) Item(rec record.CollectionRecord, raw json.RawMessage) (map[string]any, error) {
	product, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	id, ok := stringField(product, "pdsid")
	if !ok {
		return nil, &domain.MappingError{Schema: schemaPDSODE, Field: "pdsid"}
	}

	var bounds [4]float64
	for i, key := range []string{"Westernmost_longitude", "Minimum_latitude", "Easternmost_longitude", "Maximum_latitude"} {
		v, ok := floatField(product, key)
		if !ok {
			return nil, &domain.MappingError{Schema: schemaPDSODE, Field: key}
		}
		bounds[i] = v
	}
	west, south, east, north := normalizeLongitude(bounds[0]), bounds[1], normalizeLongitude(bounds[2]), bounds[3]
	if south > north {
		return nil, &domain.MappingError{Schema: schemaPDSODE, Field: "Minimum_latitude", Reason: "greater than Maximum_latitude"}
	}

	props := map[string]any{"title": id}
	if err := apply(schemaPDSODE, product, pdsodeProperties, props); err != nil {
		return nil, err
	}
	if v, ok := stringField(product, "Observation_time"); ok {
		props["datetime"] = v
	} else {
		props["datetime"] = props["start_datetime"]
	}

	doc := stac.NewItemDocument(id, rec.ID, stac.BBoxPolygon(west, south, east, north), []float64{west, south, east, north}, props)
	doc["assets"] = pdsodeAssets(product)
	if len(rec.StacExtensions) > 0 {
		doc["stac_extensions"] = rec.StacExtensions
	}
	return doc, nil
}

// pdsodeAssets 把 Product_files 转换为 assets，键为文件名。
func pdsodeAssets(product map[string]any) map[string]any {
	assets := map[string]any{}
	files, _ := product["Product_files"].(map[string]any)
	if files == nil {
		return assets
	}
	raw, err := json.Marshal(files["Product_file"])
	if err != nil {
		return assets
	}
	for _, entry := range source.OneOrMany(raw) {
		var f struct {
			Description string `json:"Description"`
			FileName    string `json:"FileName"`
			Type        string `json:"Type"`
			URL         string `json:"URL"`
		}
		if json.Unmarshal(entry, &f) != nil || f.URL == "" || f.FileName == "" {
			continue
		}
		role := "metadata"
		if strings.EqualFold(f.Type, "Product") {
			role = "data"
		}
		asset := map[string]any{"href": f.URL, "title": f.FileName, "roles": []string{role}}
		if f.Description != "" {
			asset["description"] = f.Description
		}
		assets[f.FileName] = asset
	}
	return assets
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
