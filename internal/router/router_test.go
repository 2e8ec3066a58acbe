package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/lineage"
	"pdssp-crawler/internal/pipeline"
	"pdssp-crawler/internal/record"
)

type fakeService struct {
	records    map[string]record.CollectionRecord
	lastFilter record.Filter
	lastStage  domain.Stage
	overwrite  bool
	runErr     error
}

func (f *fakeService) Collections(filter record.Filter) []record.CollectionRecord {
	f.lastFilter = filter
	var out []record.CollectionRecord
	for _, r := range f.records {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeService) Collection(id string) (record.CollectionRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return rec, fmt.Errorf("collection %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeService) Run(_ context.Context, id string, stage domain.Stage, overwrite bool) pipeline.CollectionResult {
	f.lastStage, f.overwrite = stage, overwrite
	rec, err := f.Collection(id)
	if err != nil {
		return pipeline.CollectionResult{CollectionID: id, Err: err}
	}
	if f.runErr != nil {
		stageErr := &domain.StageError{CollectionID: id, Stage: stage, Err: f.runErr}
		return pipeline.CollectionResult{
			CollectionID: id,
			Record:       rec,
			Stages:       []pipeline.StageResult{{Stage: stage, Status: domain.StatusFailed, Err: stageErr}},
			Err:          stageErr,
		}
	}
	return pipeline.CollectionResult{
		CollectionID: id,
		Record:       rec.WithExtracted([]string{"a.json"}),
		Stages:       []pipeline.StageResult{{Stage: domain.StageExtract, Status: domain.StatusSucceeded, Duration: 3 * time.Millisecond}},
	}
}

func (f *fakeService) RunAll(ctx context.Context, filter record.Filter, stage domain.Stage, overwrite bool) pipeline.BatchResult {
	var batch pipeline.BatchResult
	for _, rec := range f.Collections(filter) {
		batch.Results = append(batch.Results, f.Run(ctx, rec.ID, stage, overwrite))
	}
	return batch
}

func (f *fakeService) Lineage(_ context.Context, id string) (lineage.Lineage, error) {
	if id != "c1" {
		return lineage.Lineage{}, domain.ErrNotFound
	}
	return lineage.Lineage{ID: "c1", Kind: "Collection", State: "published", Ancestors: []string{"mars"}}, nil
}

func newTestEngine(t *testing.T) (*fakeService, http.Handler) {
	t.Helper()
	svc := &fakeService{records: map[string]record.CollectionRecord{
		"c1": {ID: "c1", Target: "mars", Service: record.ServiceRef{Type: "PDSODE"}},
		"c2": {ID: "c2", Target: "moon", Service: record.ServiceRef{Type: "WFS"}},
	}}
	return svc, NewEngine(NewCollectionHandler(svc, nil), prometheus.NewRegistry())
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestListCollections(t *testing.T) {
	svc, h := newTestEngine(t)
	w := do(h, http.MethodGet, "/api/v1/collections?target=mars&extracted=false", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Collections []record.CollectionRecord `json:"collections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Collections, 1)
	assert.Equal(t, "c1", resp.Collections[0].ID)
	require.NotNil(t, svc.lastFilter.Extracted)
	assert.False(t, *svc.lastFilter.Extracted)

	w = do(h, http.MethodGet, "/api/v1/collections?ingested=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCollection(t *testing.T) {
	_, h := newTestEngine(t)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/collections/c1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/collections/nope", "").Code)
}

func TestRunStage(t *testing.T) {
	svc, h := newTestEngine(t)
	w := do(h, http.MethodPost, "/api/v1/collections/c1/extract?overwrite=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StageExtract, svc.lastStage)
	assert.True(t, svc.overwrite)

	var view resultView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "succeeded", view.Status)
	require.Len(t, view.Stages, 1)
	assert.Equal(t, "extract", view.Stages[0].Stage)
	assert.EqualValues(t, 3, view.Stages[0].DurationMS)

	do(h, http.MethodPost, "/api/v1/collections/c1/process", "")
	assert.Equal(t, domain.StageIngest, svc.lastStage)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/api/v1/collections/c1/publish", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/api/v1/collections/nope/extract", "").Code)
}

func TestRunStageFailureStatus(t *testing.T) {
	svc, h := newTestEngine(t)
	svc.runErr = fmt.Errorf("token: %w", domain.ErrMissingCredential)
	w := do(h, http.MethodPost, "/api/v1/collections/c1/ingest", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	svc.runErr = fmt.Errorf("resto: %w", domain.ErrUpstreamRequestFailed)
	w = do(h, http.MethodPost, "/api/v1/collections/c1/ingest", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var view resultView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "failed", view.Status)
	assert.Contains(t, view.Error, "ingest stage failed for c1")
}

func TestProcessBatch(t *testing.T) {
	svc, h := newTestEngine(t)
	w := do(h, http.MethodPost, "/api/v1/process", `{"service_type":"WFS","stage":"transform"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StageTransform, svc.lastStage)

	var resp struct {
		Succeeded int          `json:"succeeded"`
		Failed    int          `json:"failed"`
		Results   []resultView `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Succeeded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c2", resp.Results[0].CollectionID)

	w = do(h, http.MethodPost, "/api/v1/process", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StageIngest, svc.lastStage)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/process", `{"stage":"publish"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/process", `{`).Code)
}

func TestLineageAndMetrics(t *testing.T) {
	_, h := newTestEngine(t)
	w := do(h, http.MethodGet, "/api/v1/lineage/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ancestors":["mars"]`)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/lineage/c2", "").Code)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/metrics", "").Code)
}
