package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"ticketgate/internal/config"
	"ticketgate/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCluster struct {
	mu       sync.Mutex
	created  bool
	docs     map[string]json.RawMessage
	requests []string
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/events":
		if f.created {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut && r.URL.Path == "/events":
		f.created = true
		io.WriteString(w, `{"acknowledged":true}`)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/events/_doc/"):
		body, _ := io.ReadAll(r.Body)
		f.docs[strings.TrimPrefix(r.URL.Path, "/events/_doc/")] = body
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"result":"created"}`)
	case r.Method == http.MethodDelete:
		id := strings.TrimPrefix(r.URL.Path, "/events/_doc/")
		if _, ok := f.docs[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"result":"not_found"}`)
			return
		}
		delete(f.docs, id)
		io.WriteString(w, `{"result":"deleted"}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		var hits []string
		for _, doc := range f.docs {
			hits = append(hits, `{"_source":`+string(doc)+`}`)
		}
		io.WriteString(w, `{"hits":{"total":{"value":`+strconv.Itoa(len(hits))+`},"hits":[`+strings.Join(hits, ",")+`]}}`)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T) (*ElasticsearchClient, *fakeCluster) {
	t.Helper()
	cluster := &fakeCluster{docs: make(map[string]json.RawMessage)}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	client, err := NewElasticsearchClient(config.ElasticsearchConfig{
		URL:     srv.URL,
		Index:   "events",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client, cluster
}

func TestIndexSearchDelete(t *testing.T) {
	client, cluster := newTestClient(t)
	ctx := context.Background()

	assert.True(t, cluster.created)

	doc := DocumentFromMessage(models.EventPublishedMessage{
		EventID:  uuid.New(),
		Title:    "Chamber music",
		StartsAt: time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC),
		Price:    3000,
		Capacity: 80,
	})
	require.NoError(t, client.IndexEvent(ctx, doc))

	docs, total, err := client.Search(ctx, "chamber", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.Equal(t, "Chamber music", docs[0].Title)

	require.NoError(t, client.DeleteEvent(ctx, doc.ID))
	assert.NoError(t, client.DeleteEvent(ctx, doc.ID), "deleting an absent document is not an error")
}

func TestBuildSearchQuery(t *testing.T) {
	all := buildSearchQuery("")
	assert.Contains(t, all, "match_all")

	q := buildSearchQuery("jazz")
	mm, ok := q["multi_match"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "jazz", mm["query"])

	assert.Len(t, buildSort("jazz"), 2)
	assert.Contains(t, buildSort("")[0], "starts_at")
}
