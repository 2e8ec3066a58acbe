package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/stac"
)

// fakeDestination 模拟 resto 的 catalogs/collections/items 接口。
type fakeDestination struct {
	mu       sync.Mutex
	existing map[string]bool
	fail     map[string]int
	requests []string
	bodies   map[string]map[string]any
	queries  map[string]string
	auth     []string
}

func newFakeDestination(existing ...string) (*fakeDestination, *httptest.Server) {
	f := &fakeDestination{
		existing: map[string]bool{},
		fail:     map[string]int{},
		bodies:   map[string]map[string]any{},
		queries:  map[string]string{},
	}
	for _, k := range existing {
		f.existing[k] = true
	}
	return f, httptest.NewServer(f)
}

func (f *fakeDestination) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	id, _ := body["id"].(string)
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	var key string
	switch {
	case parts[0] == "catalogs" && r.Method == http.MethodPost:
		key = "catalogs/" + id
		if pid := r.URL.Query().Get("pid"); pid != "" {
			key = "catalogs/" + pid + "/" + id
		}
	case parts[0] == "catalogs":
		key = strings.Join(parts, "/")
	case len(parts) == 1 && r.Method == http.MethodPost:
		key = "collections/" + id
	case len(parts) == 2:
		key = "collections/" + parts[1]
	case len(parts) == 3 && r.Method == http.MethodPost:
		key = "items/" + parts[1] + "/" + id
	case len(parts) == 4:
		key = "items/" + parts[1] + "/" + parts[3]
	}
	req := r.Method + " " + key
	f.requests = append(f.requests, req)
	f.bodies[req] = body
	f.queries[req] = r.URL.RawQuery
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	if status, ok := f.fail[key]; ok {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ErrorMessage":"boom"}`))
		return
	}
	switch r.Method {
	case http.MethodPost:
		if f.existing[key] {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"ErrorMessage":"exists"}`))
			return
		}
		f.existing[key] = true
	case http.MethodPut:
		if !f.existing[key] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"success"}`))
}

func (f *fakeDestination) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func writeJSON(t *testing.T, path string, doc any) {
	t.Helper()
	require.NoError(t, stac.WriteDocument(path, doc))
}

func link(rel, href string) map[string]any { return map[string]any{"rel": rel, "href": href} }

func item(id, collection string) map[string]any {
	return map[string]any{"type": "Feature", "id": id, "collection": collection, "geometry": nil, "properties": map[string]any{}}
}

// writeCollectionTree 写出一个包含两个 item 的 collection。
func writeCollectionTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "items", "i1.json"), item("i1", "C1"))
	writeJSON(t, filepath.Join(dir, "items", "i2.json"), item("i2", "C1"))
	path := filepath.Join(dir, "collection.json")
	writeJSON(t, path, map[string]any{
		"type": "Collection", "id": "C1", "description": "c",
		"summaries": map[string]any{"platform": []string{"MRO"}},
		"links":     []any{link("root", "../catalog.json"), link("item", "./items/i1.json"), link("item", "./items/i2.json")},
	})
	return path
}

func newTestEngine(t *testing.T, srv *httptest.Server, split bool) *Engine {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: srv.URL, Token: "secret", SplitGeometry: split})
	require.NoError(t, err)
	return NewEngine(client, nil)
}

func TestIngestConflictWithUpdate(t *testing.T) {
	dest, srv := newFakeDestination("collections/C1")
	defer srv.Close()

	out, err := newTestEngine(t, srv, false).IngestFile(context.Background(), writeCollectionTree(t), StrategyBoth, true)
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodeUpdated, NodePublished, NodePublished}, out.States())
	assert.Equal(t, srv.URL+"/collections/C1", out.Root.URL)
	assert.Equal(t, []string{
		"POST collections/C1", "PUT collections/C1", "POST items/C1/i1", "POST items/C1/i2",
	}, dest.requests)
	assert.NotEmpty(t, out.RunID)
}

func TestIngestConflictWithoutUpdateStillVisitsChildren(t *testing.T) {
	_, srv := newFakeDestination("collections/C1")
	defer srv.Close()

	out, err := newTestEngine(t, srv, false).IngestFile(context.Background(), writeCollectionTree(t), StrategyBoth, false)
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodeSkippedExists, NodePublished, NodePublished}, out.States())
	assert.NoError(t, out.Err())
}

func TestIngestIsIdempotent(t *testing.T) {
	_, srv := newFakeDestination()
	defer srv.Close()
	engine := newTestEngine(t, srv, false)
	path := writeCollectionTree(t)

	first, err := engine.IngestFile(context.Background(), path, StrategyBoth, false)
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodePublished, NodePublished, NodePublished}, first.States())

	second, err := engine.IngestFile(context.Background(), path, StrategyBoth, false)
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodeSkippedExists, NodeSkippedExists, NodeSkippedExists}, second.States())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestIngestDedupSharedItem(t *testing.T) {
	dest, srv := newFakeDestination()
	defer srv.Close()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "i1.json"), item("i1", "C1"))
	writeJSON(t, filepath.Join(dir, "all.json"), map[string]any{
		"type": "FeatureCollection", "features": []any{item("i1", "C1"), item("i2", "C1")},
	})
	path := filepath.Join(dir, "collection.json")
	writeJSON(t, path, map[string]any{
		"type": "Collection", "id": "C1",
		"links": []any{link("item", "./i1.json"), link("items", "./all.json"), link("item", "./i1.json")},
	})

	out, err := newTestEngine(t, srv, false).IngestFile(context.Background(), path, StrategyBoth, false)
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodePublished, NodePublished, NodeDeduped, NodePublished, NodeDeduped}, out.States())
	assert.Equal(t, 1, dest.count("POST items/C1/i1"))
	assert.Equal(t, 2, dest.count("POST items/"))
}

func TestIngestInvalidStrategyBeforeRequests(t *testing.T) {
	dest, srv := newFakeDestination()
	defer srv.Close()
	engine := newTestEngine(t, srv, false)

	_, err := engine.IngestFile(context.Background(), writeCollectionTree(t), Strategy("everything"), false)
	require.ErrorIs(t, err, domain.ErrInvalidStrategy)

	_, err = ParseStrategy("items")
	require.ErrorIs(t, err, domain.ErrInvalidStrategy)
	assert.Empty(t, dest.requests)
}

func TestIngestInvalidDocumentIsFatal(t *testing.T) {
	dest, srv := newFakeDestination()
	defer srv.Close()

	path := writeCollectionTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "items", "i2.json"), []byte(`{"id":"i2"}`), 0o644))

	_, err := newTestEngine(t, srv, false).IngestFile(context.Background(), path, StrategyBoth, false)
	require.ErrorIs(t, err, domain.ErrInvalidCatalogDocument)
	assert.Empty(t, dest.requests)
}

func TestIngestRootFailureAborts(t *testing.T) {
	dest, srv := newFakeDestination()
	defer srv.Close()
	dest.fail["collections/C1"] = http.StatusInternalServerError

	out, err := newTestEngine(t, srv, false).IngestFile(context.Background(), writeCollectionTree(t), StrategyBoth, true)
	require.ErrorIs(t, err, domain.ErrUpstreamRequestFailed)
	assert.Equal(t, []NodeState{NodeFailed}, out.States())
	assert.Equal(t, 0, dest.count("POST items/"))
}

func TestIngestItemFailureDoesNotStopWalk(t *testing.T) {
	dest, srv := newFakeDestination()
	defer srv.Close()
	dest.fail["items/C1/i1"] = http.StatusBadRequest

	out, err := newTestEngine(t, srv, false).IngestFile(context.Background(), writeCollectionTree(t), StrategyBoth, false)
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodePublished, NodeFailed, NodePublished}, out.States())
	require.Error(t, out.Err())
	assert.ErrorIs(t, out.Err(), domain.ErrUpstreamRequestFailed)
}

func TestIngestStrategies(t *testing.T) {
	path := writeCollectionTree(t)

	dest, srv := newFakeDestination()
	out, err := newTestEngine(t, srv, false).IngestFile(context.Background(), path, StrategyCatalog, false)
	srv.Close()
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodePublished}, out.States())
	assert.Equal(t, []string{"POST collections/C1"}, dest.requests)

	dest, srv = newFakeDestination("collections/C1")
	out, err = newTestEngine(t, srv, false).IngestFile(context.Background(), path, StrategyFeature, false)
	srv.Close()
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodeExcluded, NodePublished, NodePublished}, out.States())
	assert.Equal(t, 0, dest.count("POST collections/"))

	dest, srv = newFakeDestination()
	out, err = newTestEngine(t, srv, false).IngestFile(context.Background(), path, StrategyNone, false)
	srv.Close()
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodeExcluded}, out.States())
	assert.Empty(t, dest.requests)
}

func TestIngestCatalogHierarchy(t *testing.T) {
	dest, srv := newFakeDestination("catalogs/mars/hirise")
	defer srv.Close()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "hirise", "C1", "collection.json"), map[string]any{"type": "Collection", "id": "C1"})
	writeJSON(t, filepath.Join(dir, "hirise", "catalog.json"), map[string]any{
		"type": "Catalog", "id": "hirise", "links": []any{link("child", "./C1/collection.json")},
	})
	root := filepath.Join(dir, "catalog.json")
	writeJSON(t, root, map[string]any{
		"type": "Catalog", "id": "mars", "links": []any{link("child", "./hirise/catalog.json")},
	})

	out, err := newTestEngine(t, srv, false).IngestFile(context.Background(), root, StrategyBoth, true)
	require.NoError(t, err)
	assert.Equal(t, []NodeState{NodePublished, NodeUpdated, NodePublished}, out.States())
	assert.Equal(t, []string{
		"POST catalogs/mars", "POST catalogs/mars/hirise", "PUT catalogs/mars/hirise", "POST collections/C1",
	}, dest.requests)
	assert.Equal(t, "", dest.queries["POST catalogs/mars"])
	assert.Equal(t, "pid=mars", dest.queries["POST catalogs/mars/hirise"])
	assert.Equal(t, srv.URL+"/catalogs/mars/hirise", out.Nodes[1].URL)
	assert.Equal(t, "mars", out.Nodes[1].ParentID)
}

func TestIngestRequestShape(t *testing.T) {
	dest, srv := newFakeDestination()
	defer srv.Close()

	_, err := newTestEngine(t, srv, false).IngestFile(context.Background(), writeCollectionTree(t), StrategyBoth, false)
	require.NoError(t, err)

	collection := dest.bodies["POST collections/C1"]
	assert.Equal(t, DefaultModel, collection["model"])
	assert.NotContains(t, collection, "summaries")
	assert.NotContains(t, collection, "links")
	assert.Equal(t, "_splitGeom=0", dest.queries["POST items/C1/i1"])
	for _, a := range dest.auth {
		assert.Equal(t, "Bearer secret", a)
	}

	dest2, srv2 := newFakeDestination()
	defer srv2.Close()
	_, err = newTestEngine(t, srv2, true).IngestFile(context.Background(), writeCollectionTree(t), StrategyFeature, false)
	require.NoError(t, err)
	assert.Equal(t, "", dest2.queries["POST items/C1/i1"])
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "http://localhost"})
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
}

func TestCollectionBodyKeepsModel(t *testing.T) {
	doc := map[string]any{"id": "C1", "model": "PlanetModel", "links": []any{}}
	body := CollectionBody(doc)
	assert.Equal(t, "PlanetModel", body["model"])
	assert.Contains(t, doc, "links")
}
