package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
)

// fakeStages 同时实现三个阶段接口，记录调用顺序并按集合注入失败。
type fakeStages struct {
	t     *testing.T
	store *record.Store
	calls []string
	fail  map[string]domain.Stage
}

func (f *fakeStages) check(rec record.CollectionRecord) {
	// 每次进入阶段时，持久化状态都必须满足阶段单调性
	for _, r := range f.store.List(record.Filter{}) {
		require.NoError(f.t, r.Validate())
	}
}

func (f *fakeStages) Extract(_ context.Context, rec record.CollectionRecord, _ bool) ([]string, error) {
	f.check(rec)
	f.calls = append(f.calls, "extract:"+rec.ID)
	if f.fail[rec.ID] == domain.StageExtract {
		return nil, domain.ErrUpstreamRequestFailed
	}
	return []string{rec.ID + ".json", rec.ID + "_001.json"}, nil
}

func (f *fakeStages) Transform(_ context.Context, rec record.CollectionRecord) (string, error) {
	f.check(rec)
	f.calls = append(f.calls, "transform:"+rec.ID)
	if !rec.Extracted {
		return "", errors.New("transform before extract")
	}
	if f.fail[rec.ID] == domain.StageTransform {
		return "", &domain.MappingError{Schema: "PDSODE", Field: "pdsid"}
	}
	return filepath.Join("stac", rec.ID, "collection.json"), nil
}

func (f *fakeStages) Ingest(_ context.Context, rec record.CollectionRecord, _ bool) (string, error) {
	f.check(rec)
	f.calls = append(f.calls, "ingest:"+rec.ID)
	if !rec.Transformed {
		return "", errors.New("ingest before transform")
	}
	if f.fail[rec.ID] == domain.StageIngest {
		return "", domain.ErrUpstreamRequestFailed
	}
	return "https://dest/collections/" + rec.ID, nil
}

func newTestController(t *testing.T, records ...record.CollectionRecord) (*Controller, *fakeStages, *record.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := record.Open(ctx, record.NewFileBackend(filepath.Join(t.TempDir(), "collections.json")), nil)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, store.Put(ctx, r, false))
	}
	stages := &fakeStages{t: t, store: store, fail: map[string]domain.Stage{}}
	return NewController(store, stages, stages, stages, nil), stages, store
}

func fresh(id string) record.CollectionRecord {
	return record.CollectionRecord{ID: id, Service: record.ServiceRef{Type: "PDSODE"}, SourceSchema: "PDSODE", Target: "mars"}
}

func statuses(res CollectionResult) []domain.Status {
	out := make([]domain.Status, 0, len(res.Stages))
	for _, s := range res.Stages {
		out = append(out, s.Status)
	}
	return out
}

func TestRunTransformCascadesToExtract(t *testing.T) {
	c, stages, store := newTestController(t, fresh("A"))

	res := c.Run(context.Background(), "A", domain.StageTransform, false)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"extract:A", "transform:A"}, stages.calls)
	assert.Equal(t, []domain.Status{domain.StatusSucceeded, domain.StatusSucceeded}, statuses(res))

	rec, err := store.Get("A")
	require.NoError(t, err)
	assert.True(t, rec.Extracted)
	assert.True(t, rec.Transformed)
	assert.False(t, rec.Ingested)
	assert.Equal(t, []string{"A.json", "A_001.json"}, rec.ExtractedFiles)
}

func TestRunExtractFailureStopsCascade(t *testing.T) {
	c, stages, store := newTestController(t, fresh("A"))
	stages.fail["A"] = domain.StageExtract

	res := c.Process(context.Background(), "A", false)
	require.Error(t, res.Err)
	var stageErr *domain.StageError
	require.True(t, errors.As(res.Err, &stageErr))
	assert.Equal(t, domain.StageExtract, stageErr.Stage)
	assert.ErrorIs(t, res.Err, domain.ErrUpstreamRequestFailed)
	assert.Equal(t, []string{"extract:A"}, stages.calls)
	assert.Equal(t, domain.StatusFailed, res.Status())

	rec, err := store.Get("A")
	require.NoError(t, err)
	assert.False(t, rec.Extracted)
	assert.False(t, rec.Transformed)
}

func TestRunResumesFromLastCompletedStage(t *testing.T) {
	c, stages, store := newTestController(t, fresh("A"))
	stages.fail["A"] = domain.StageTransform

	res := c.Process(context.Background(), "A", false)
	assert.ErrorIs(t, res.Err, domain.ErrUnmappableRecord)
	rec, err := store.Get("A")
	require.NoError(t, err)
	assert.True(t, rec.Extracted)
	assert.False(t, rec.Transformed)

	delete(stages.fail, "A")
	stages.calls = nil
	res = c.Process(context.Background(), "A", false)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"transform:A", "ingest:A"}, stages.calls)
	assert.Equal(t, []domain.Status{domain.StatusSkipped, domain.StatusSucceeded, domain.StatusSucceeded}, statuses(res))
	assert.Equal(t, "https://dest/collections/A", res.Record.StacURL)
}

func TestRunSkipsCompletedStagesUnlessOverwrite(t *testing.T) {
	done := fresh("A").WithExtracted([]string{"x"}).WithTransformed("y").WithIngested("z")
	c, stages, _ := newTestController(t, done)

	res := c.Process(context.Background(), "A", false)
	require.NoError(t, res.Err)
	assert.Empty(t, stages.calls)
	assert.Equal(t, domain.StatusSkipped, res.Status())

	res = c.Process(context.Background(), "A", true)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"extract:A", "transform:A", "ingest:A"}, stages.calls)
	assert.Equal(t, domain.StatusSucceeded, res.Status())
}

func TestRunExtractOnly(t *testing.T) {
	c, stages, _ := newTestController(t, fresh("A"))
	res := c.Run(context.Background(), "A", domain.StageExtract, false)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"extract:A"}, stages.calls)
}

func TestRunNotFound(t *testing.T) {
	c, _, _ := newTestController(t)
	res := c.Process(context.Background(), "missing", false)
	assert.ErrorIs(t, res.Err, domain.ErrNotFound)
	assert.Empty(t, res.Stages)
}

func TestRunCancelledContext(t *testing.T) {
	c, stages, _ := newTestController(t, fresh("A"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Process(ctx, "A", false)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, stages.calls)
}

func TestProcessAllIsolatesFailures(t *testing.T) {
	c, stages, store := newTestController(t, fresh("A"), fresh("B"), fresh("C"))
	stages.fail["B"] = domain.StageTransform

	batch := c.ProcessAll(context.Background(), record.Filter{}, false)
	require.Len(t, batch.Results, 3)
	assert.Equal(t, domain.StatusSucceeded, batch.Results[0].Status())
	assert.Equal(t, domain.StatusFailed, batch.Results[1].Status())
	assert.Equal(t, domain.StatusSucceeded, batch.Results[2].Status())
	assert.Equal(t, 1, batch.Count(domain.StatusFailed))
	assert.ErrorIs(t, batch.Err(), domain.ErrUnmappableRecord)

	for id, ingested := range map[string]bool{"A": true, "B": false, "C": true} {
		rec, err := store.Get(id)
		require.NoError(t, err)
		assert.Equal(t, ingested, rec.Ingested, id)
		require.NoError(t, rec.Validate())
	}
	b, _ := store.Get("B")
	assert.True(t, b.Extracted)
	assert.False(t, b.Transformed)
}

func TestProcessAllFilter(t *testing.T) {
	done := fresh("A").WithExtracted([]string{"x"})
	c, stages, _ := newTestController(t, done, fresh("B"))

	batch := c.RunAll(context.Background(), record.Filter{Extracted: record.Bool(false)}, domain.StageExtract, false)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "B", batch.Results[0].CollectionID)
	assert.Equal(t, []string{"extract:B"}, stages.calls)
	assert.NoError(t, batch.Err())
}
