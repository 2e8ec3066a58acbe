package record

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdssp-crawler/internal/domain"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collections_index.json")
	s, err := Open(context.Background(), NewFileBackend(path), nil)
	require.NoError(t, err)
	return s, path
}

func sampleRecord(id, target string) CollectionRecord {
	return CollectionRecord{
		ID:           id,
		Service:      ServiceRef{Title: "PDS ODE API", Type: "PDSODE", URL: "https://oderest.rsl.wustl.edu/live2"},
		SourceSchema: "PDSODE",
		Target:       target,
		ProductCount: 12,
	}
}

func TestOpenCreatesEmptySnapshot(t *testing.T) {
	s, path := newTestStore(t)
	assert.Equal(t, 0, s.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, rejected, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, rejected)
}

func TestPutGetAndConflict(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	rec := sampleRecord("MRO_HIRISE_RDRV11", "mars")
	require.NoError(t, s.Put(ctx, rec, false))

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "mars", got.Target)

	err = s.Put(ctx, rec, false)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	updated := rec.WithExtracted([]string{"a.json"})
	require.NoError(t, s.Put(ctx, updated, true))

	reopened, err := Open(ctx, NewFileBackend(path), nil)
	require.NoError(t, err)
	got, err = reopened.Get(rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Extracted)
	assert.Equal(t, []string{"a.json"}, got.ExtractedFiles)
}

func TestGetNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPutRejectsStageOrderViolation(t *testing.T) {
	s, _ := newTestStore(t)
	rec := sampleRecord("c1", "moon")
	rec.Transformed = true
	err := s.Put(context.Background(), rec, false)
	assert.ErrorIs(t, err, domain.ErrStageOrderViolation)
	assert.Equal(t, 0, s.Len())
}

func TestListFilter(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	a := sampleRecord("MRO_CRISM_TRDR", "Mars")
	b := sampleRecord("LRO_LROC_EDR", "Moon").WithExtracted([]string{"x"})
	c := sampleRecord("wfs_layer", "mars")
	c.Service.Type = "WFS"
	require.NoError(t, s.ReplaceAll(ctx, []CollectionRecord{a, b, c}))

	assert.Len(t, s.List(Filter{}), 3)
	assert.Len(t, s.List(Filter{Target: "MARS"}), 2)
	assert.Len(t, s.List(Filter{ID: "crism"}), 1)
	assert.Len(t, s.List(Filter{ServiceType: "WFS"}), 1)
	assert.Len(t, s.List(Filter{ServiceType: "wfs"}), 0)

	extracted := s.List(Filter{Extracted: Bool(true)})
	require.Len(t, extracted, 1)
	assert.Equal(t, "LRO_LROC_EDR", extracted[0].ID)

	notExtracted := s.List(Filter{Extracted: Bool(false), Target: "mars"})
	require.Len(t, notExtracted, 2)
	assert.Equal(t, "MRO_CRISM_TRDR", notExtracted[0].ID)
	assert.Equal(t, "wfs_layer", notExtracted[1].ID)
}

func TestReplaceAllResets(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(ctx, sampleRecord("old", "mars"), false))
	require.NoError(t, s.ReplaceAll(ctx, []CollectionRecord{sampleRecord("new", "moon")}))

	_, err := s.Get("old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, s.Len())

	err = s.ReplaceAll(ctx, []CollectionRecord{sampleRecord("dup", "x"), sampleRecord("dup", "y")})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 1, s.Len())
}

func TestOpenWrongTypeTagIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections_index.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"Wrong","collections":[{"collection_id":"a"}]}`), 0o644))

	s, err := Open(context.Background(), NewFileBackend(path), nil)
	assert.ErrorIs(t, err, domain.ErrCorruptSnapshot)
	assert.Nil(t, s)
}

func TestOpenMissingTypeTagIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections_index.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"collections":[]}`), 0o644))

	_, err := Open(context.Background(), NewFileBackend(path), nil)
	assert.ErrorIs(t, err, domain.ErrCorruptSnapshot)
}

func TestOpenDropsInvalidRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections_index.json")
	doc := `{"type":"SourceCollections","collections":[
		{"collection_id":"good","service":{"title":"t","type":"PDSODE","url":"u"},"n_products":1},
		{"collection_id":"","n_products":1},
		{"collection_id":"broken","n_products":"many"},
		{"collection_id":"bad_order","ingested":true,"n_products":1}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := Open(context.Background(), NewFileBackend(path), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	_, err = s.Get("good")
	assert.NoError(t, err)
}

func TestWithExtractedClearsDownstream(t *testing.T) {
	rec := sampleRecord("c1", "mars").
		WithExtracted([]string{"a"}).
		WithTransformed("/stac/c1/collection.json").
		WithIngested("https://dest/collections/c1")
	require.NoError(t, rec.Validate())

	again := rec.WithExtracted([]string{"b"})
	assert.True(t, again.Extracted)
	assert.False(t, again.Transformed)
	assert.False(t, again.Ingested)
	assert.Empty(t, again.StacURL)
	assert.True(t, rec.Ingested, "original value must stay untouched")
}
