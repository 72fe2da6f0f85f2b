package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-user-service/internal/domain/entity"
)

type fakeES struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasPrefix(r.URL.Path, "/users/_doc/") && r.Method == http.MethodPut:
		id := strings.TrimPrefix(r.URL.Path, "/users/_doc/")
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		f.docs[id] = doc
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	case strings.HasPrefix(r.URL.Path, "/users/_doc/") && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(r.URL.Path, "/users/_doc/")
		if _, ok := f.docs[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"result":"not_found"}`)
			return
		}
		delete(f.docs, id)
		_, _ = io.WriteString(w, `{"result":"deleted"}`)
	case r.URL.Path == "/users/_search":
		hits := make([]map[string]any, 0, len(f.docs))
		for id, doc := range f.docs {
			hits = append(hits, map[string]any{"_id": id, "_source": doc})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{}`)
	}
}

func newTestIndex(t *testing.T) (*UserIndex, *fakeES) {
	t.Helper()
	fake := &fakeES{docs: map[string]map[string]any{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	es, err := NewESClient([]string{srv.URL}, "", "")
	require.NoError(t, err)
	return NewUserIndex(es, "users"), fake
}

func TestIndexSearchDelete(t *testing.T) {
	idx, fake := newTestIndex(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := &entity.User{ID: "u1", Name: "Ann", Email: "ann@x.com", Password: "secret-hash", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, idx.Index(ctx, u))

	require.Contains(t, fake.docs, "u1")
	assert.Equal(t, "ann@x.com", fake.docs["u1"]["email"])
	assert.NotContains(t, fake.docs["u1"], "password")

	hits, err := idx.Search(ctx, "ann", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Ann", hits[0]["name"])

	require.NoError(t, idx.Delete(ctx, "u1"))
	assert.NotContains(t, fake.docs, "u1")

	// deleting again is tolerated
	require.NoError(t, idx.Delete(ctx, "u1"))
}
