package elasticsearch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/maxviazov/storegate/internal/model"
)

type storedDoc struct {
	source model.Resource
	seqNo  int
}

// fakeNode is a single-index in-memory stand-in for the handful of Elasticsearch
// endpoints the adapter calls.
type fakeNode struct {
	mu       sync.Mutex
	indices  map[string]bool
	docs     map[string]storedDoc
	nextSeq  int
	requests []string

	// conflictNext makes the next conditional index fail as if another writer won.
	conflictNext bool
	// createIndexError, when set, is the error type returned by index creation.
	createIndexError string
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()
	n := &fakeNode{indices: map[string]bool{}, docs: map[string]storedDoc{}}
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, r.Method+" "+r.URL.Path)

	// the client refuses to talk to anything that does not claim to be Elasticsearch
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/":
		writeJSON(w, http.StatusOK, map[string]any{"version": map[string]any{"number": "8.18.1"}})
	case len(parts) == 1 && r.Method == http.MethodHead:
		if n.indices[parts[0]] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case len(parts) == 1 && r.Method == http.MethodPut:
		if n.createIndexError != "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{
				"type":   n.createIndexError,
				"reason": "rejected by test node",
			}})
			return
		}
		if n.indices[parts[0]] {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"type": "resource_already_exists_exception"}})
			return
		}
		n.indices[parts[0]] = true
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
	case len(parts) == 3 && parts[1] == "_create":
		n.create(w, r, parts[2])
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodGet:
		n.get(w, parts[2])
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodPut:
		n.index(w, r, parts[2])
	case len(parts) == 2 && parts[1] == "_search":
		n.search(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported " + r.Method + " " + r.URL.Path})
	}
}

func (n *fakeNode) create(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := n.docs[id]; ok {
		writeJSON(w, http.StatusConflict, map[string]any{"error": map[string]any{"type": "version_conflict_engine_exception"}})
		return
	}
	var src model.Resource
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	n.nextSeq++
	n.docs[id] = storedDoc{source: src, seqNo: n.nextSeq}
	writeJSON(w, http.StatusCreated, map[string]any{"_id": id, "result": "created", "_seq_no": n.nextSeq, "_primary_term": 1})
}

func (n *fakeNode) get(w http.ResponseWriter, id string) {
	d, ok := n.docs[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"_id": id, "found": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_id": id, "found": true, "_seq_no": d.seqNo, "_primary_term": 1, "_source": d.source,
	})
}

func (n *fakeNode) index(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := n.docs[id]
	if q := r.URL.Query().Get("if_seq_no"); q != "" {
		want, _ := strconv.Atoi(q)
		if n.conflictNext || !ok || d.seqNo != want || r.URL.Query().Get("if_primary_term") != "1" {
			n.conflictNext = false
			writeJSON(w, http.StatusConflict, map[string]any{"error": map[string]any{"type": "version_conflict_engine_exception"}})
			return
		}
	}
	var src model.Resource
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	n.nextSeq++
	n.docs[id] = storedDoc{source: src, seqNo: n.nextSeq}
	writeJSON(w, http.StatusOK, map[string]any{"_id": id, "result": "updated", "_seq_no": n.nextSeq, "_primary_term": 1})
}

func (n *fakeNode) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	all := make([]model.Resource, 0, len(n.docs))
	for _, d := range n.docs {
		all = append(all, d.source)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	hits := []map[string]any{}
	for i := req.From; i < len(all) && i < req.From+req.Size; i++ {
		hits = append(hits, map[string]any{"_id": all[i].ID, "_source": all[i]})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(all), "relation": "eq"},
			"hits":  hits,
		},
	})
}

func (n *fakeNode) conflictOnNextWrite() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conflictNext = true
}

func (n *fakeNode) failIndexCreation(errType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.createIndexError = errType
}

func (n *fakeNode) seen(prefix string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range n.requests {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
