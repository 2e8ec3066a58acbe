package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/source"
	"pdssp-crawler/internal/stac"
)

const odeSet = `{"ODEMetaDB":"Mars","IHID":"MRO","IHName":"Mars Reconnaissance Orbiter","IID":"HIRISE",
 "IName":"HiRISE","PT":"RDRV11","PTName":"RDR V1.1","DataSetId":"MRO-M-HIRISE-3-RDR-V1.1",
 "NumberProducts":"2","ValidFootprints":"T","ValidTargets":{"ValidTarget":["Mars","Phobos"]}}`

const odePage = `{"ODEResults":{"Status":"Success","Products":{"Product":[
 {"pdsid":"ESP_0001_RED","ihid":"MRO","iid":"HIRISE","Target_name":"MARS",
  "UTC_start_time":"2007-01-01T00:00:00.000","UTC_stop_time":"2007-01-01T00:00:10.000",
  "Westernmost_longitude":"350.0","Easternmost_longitude":"352.0","Minimum_latitude":"-10","Maximum_latitude":"-8",
  "Emission_angle":"1.5","Product_files":{"Product_file":{"FileName":"ESP_0001_RED.JP2","Type":"Product","URL":"https://example/ESP_0001_RED.JP2"}}},
 {"pdsid":"ESP_0002_RED","ihid":"MRO","iid":"HIRISE",
  "UTC_start_time":"2007-01-02T00:00:00.000","UTC_stop_time":"2007-01-02T00:00:10.000",
  "Westernmost_longitude":"10","Easternmost_longitude":"12","Minimum_latitude":"5","Maximum_latitude":"6"}
]}}}`

func writeExtract(t *testing.T, dir string, files map[string]string, order ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(order))
	for _, name := range order {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(files[name]), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func odeRecord(files []string) record.CollectionRecord {
	return record.CollectionRecord{
		ID: "MRO_HIRISE_RDRV11", SourceSchema: source.ServiceTypePDSODE, Target: "mars",
		Service: record.ServiceRef{Type: source.ServiceTypePDSODE}, Extracted: true, ExtractedFiles: files,
	}
}

func TestPDSODEItemMapping(t *testing.T) {
	m, err := Lookup(source.ServiceTypePDSODE)
	require.NoError(t, err)
	records, err := m.Records([]byte(odePage))
	require.NoError(t, err)
	require.Len(t, records, 2)

	item, err := m.Item(odeRecord(nil), records[0])
	require.NoError(t, err)
	assert.Equal(t, "ESP_0001_RED", item["id"])
	assert.Equal(t, "MRO_HIRISE_RDRV11", item["collection"])
	assert.Equal(t, []float64{-10, -10, -8, -8}, item["bbox"])

	props := item["properties"].(map[string]any)
	assert.Equal(t, "2007-01-01T00:00:00.000", props["datetime"])
	assert.Equal(t, []string{"HIRISE"}, props["instruments"])
	assert.Equal(t, []string{"MARS"}, props["ssys:targets"])
	assert.Equal(t, 1.5, props["ssys:emission_angle"])

	assets := item["assets"].(map[string]any)
	require.Contains(t, assets, "ESP_0001_RED.JP2")
	assert.Equal(t, []string{"data"}, assets["ESP_0001_RED.JP2"].(map[string]any)["roles"])
}

func TestPDSODEItemMissingField(t *testing.T) {
	m, err := Lookup(source.ServiceTypePDSODE)
	require.NoError(t, err)

	_, err = m.Item(odeRecord(nil), json.RawMessage(`{"pdsid":"X","UTC_start_time":"t","UTC_stop_time":"t"}`))
	require.ErrorIs(t, err, domain.ErrUnmappableRecord)
	var mappingErr *domain.MappingError
	require.True(t, errors.As(err, &mappingErr))
	assert.Equal(t, "Westernmost_longitude", mappingErr.Field)

	_, err = m.Item(odeRecord(nil), json.RawMessage(`{"UTC_start_time":"t"}`))
	require.True(t, errors.As(err, &mappingErr))
	assert.Equal(t, "pdsid", mappingErr.Field)
}

func TestLookupUnknownSchema(t *testing.T) {
	_, err := Lookup("EPNTAP")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, Schemas(), source.ServiceTypeWFS)
}

func TestTransformWritesTargetTree(t *testing.T) {
	extractDir := t.TempDir()
	files := writeExtract(t, extractDir, map[string]string{"meta.json": odeSet, "page_001.json": odePage}, "meta.json", "page_001.json")
	stacDir := t.TempDir()
	tr := NewTransformer(stacDir, nil)

	path, err := tr.Transform(context.Background(), odeRecord(files))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(stacDir, "mars", "MRO_HIRISE_RDRV11", CollectionFile), path)

	// 再次转换不会在 catalog 中重复挂载集合
	_, err = tr.Transform(context.Background(), odeRecord(files))
	require.NoError(t, err)

	root, err := stac.LoadTree(tr.TargetCatalogPath("mars"), stac.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, stac.KindCatalog, root.Kind)
	require.Len(t, root.Children, 1)
	collection := root.Children[0]
	assert.Equal(t, "MRO_HIRISE_RDRV11", collection.ID)
	require.Len(t, collection.Children, 2)
	assert.Equal(t, "ESP_0001_RED", collection.Children[0].ID)
	assert.Equal(t, "MRO_HIRISE_RDRV11", collection.Children[1].CollectionID())
}

func TestTransformUnmappableAbortsCollection(t *testing.T) {
	extractDir := t.TempDir()
	bad := `{"ODEResults":{"Products":{"Product":{"ihid":"MRO"}}}}`
	files := writeExtract(t, extractDir, map[string]string{"meta.json": odeSet, "page_001.json": bad}, "meta.json", "page_001.json")

	_, err := NewTransformer(t.TempDir(), nil).Transform(context.Background(), odeRecord(files))
	assert.ErrorIs(t, err, domain.ErrUnmappableRecord)
}

func TestWFSItemMapping(t *testing.T) {
	m, err := Lookup(source.ServiceTypeWFS)
	require.NoError(t, err)
	rec := record.CollectionRecord{ID: "craters", Target: "mars"}

	item, err := m.Item(rec, json.RawMessage(`{"type":"Feature","id":7,"geometry":{"type":"Polygon",
		"coordinates":[[[1,2],[3,2],[3,5],[1,5],[1,2]]]},"properties":{"name":"Gale"}}`))
	require.NoError(t, err)
	assert.Equal(t, "7", item["id"])
	assert.Equal(t, []float64{1, 2, 3, 5}, item["bbox"])
	assert.Equal(t, "Gale", item["properties"].(map[string]any)["name"])

	_, err = m.Item(rec, json.RawMessage(`{"type":"Feature","id":"x","geometry":null}`))
	assert.ErrorIs(t, err, domain.ErrUnmappableRecord)
}
