package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/maxviazov/storegate/internal/gateway"
	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

const backendName = "elasticsearch"

// indexMapping keeps ids and enums as keywords so List can sort on (created_at, id).
const indexMapping = `{
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "id":         {"type": "keyword"},
      "name":       {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "kind":       {"type": "keyword"},
      "status":     {"type": "keyword"},
      "attributes": {"type": "flattened"},
      "version":    {"type": "long"},
      "created_at": {"type": "date"},
      "updated_at": {"type": "date"}
    }
  }
}`

type resourceStore struct {
	gw      *gateway.Gateway[*Conn]
	index   string
	refresh string
	now     func() time.Time
}

// NewResourceStore returns the elasticsearch adapter over one index. Writes wait
// for a refresh so a following List sees them.
func NewResourceStore(gw *gateway.Gateway[*Conn], index string) repository.Store {
	return &resourceStore{
		gw:      gw,
		index:   index,
		refresh: "wait_for",
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *resourceStore) Backend() string { return backendName }

func (s *resourceStore) Create(ctx context.Context, r model.Resource) (model.Resource, error) {
	const op = "elasticsearch.Create"
	body, err := json.Marshal(r)
	if err != nil {
		return model.Resource{}, repository.AccessFailure(op, err)
	}
	err = s.gw.Execute(ctx, func(ctx context.Context, c *Conn) error {
		res, err := c.Create(s.index, r.ID, bytes.NewReader(body),
			c.Create.WithContext(ctx),
			c.Create.WithRefresh(s.refresh),
		)
		if err != nil {
			return repository.AccessFailure(op, err)
		}
		defer closeBody(res)
		switch {
		case res.StatusCode == http.StatusConflict:
			return repository.E(repository.KindAlreadyExists, op, r.ID, nil)
		case res.IsError():
			return repository.AccessFailure(op, responseError(res))
		}
		return nil
	})
	if err != nil {
		return model.Resource{}, err
	}
	return r, nil
}

// document is the subset of a GET _doc reply the adapter needs.
type document struct {
	Found       bool           `json:"found"`
	SeqNo       int            `json:"_seq_no"`
	PrimaryTerm int            `json:"_primary_term"`
	Source      model.Resource `json:"_source"`
}

// get fetches one document; found is false on 404.
func (s *resourceStore) get(ctx context.Context, c *Conn, op, id string) (document, bool, error) {
	res, err := c.Get(s.index, id, c.Get.WithContext(ctx))
	if err != nil {
		return document{}, false, repository.AccessFailure(op, err)
	}
	defer closeBody(res)
	if res.StatusCode == http.StatusNotFound {
		return document{}, false, nil
	}
	if res.IsError() {
		return document{}, false, repository.AccessFailure(op, responseError(res))
	}
	var doc document
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return document{}, false, repository.AccessFailure(op, fmt.Errorf("decode document: %w", err))
	}
	return doc, doc.Found, nil
}

func (s *resourceStore) Find(ctx context.Context, id string) (model.Resource, bool, error) {
	return gateway.Find(ctx, s.gw, func(ctx context.Context, c *Conn) (model.Resource, bool, error) {
		doc, ok, err := s.get(ctx, c, "elasticsearch.Find", id)
		if err != nil || !ok {
			return model.Resource{}, false, err
		}
		return doc.Source, true, nil
	})
}

func (s *resourceStore) Update(ctx context.Context, r model.Resource) (model.Resource, error) {
	const op = "elasticsearch.Update"
	if !r.Status.Valid() {
		return model.Resource{}, repository.E(repository.KindInvalid, op, r.ID, nil)
	}
	return s.write(ctx, op, r.ID, func(current model.Resource) model.Resource {
		next := r
		next.CreatedAt = current.CreatedAt
		return next
	})
}

func (s *resourceStore) Delete(ctx context.Context, id string) error {
	_, err := s.write(ctx, "elasticsearch.Delete", id, func(current model.Resource) model.Resource {
		current.Status = model.StatusDeleted
		return current
	})
	return err
}

// write is a read-check-write guarded by the document's sequence number, so a
// concurrent writer between the read and the write surfaces as a 409 (Invalid).
func (s *resourceStore) write(ctx context.Context, op, id string, mutate func(model.Resource) model.Resource) (model.Resource, error) {
	var out model.Resource
	err := s.gw.Execute(ctx, func(ctx context.Context, c *Conn) error {
		doc, ok, err := s.get(ctx, c, op, id)
		if err != nil {
			return err
		}
		if !ok {
			return repository.E(repository.KindNotFound, op, id, nil)
		}
		if doc.Source.Status.Terminal() {
			return repository.E(repository.KindInvalid, op, id, nil)
		}

		out = mutate(doc.Source)
		out.ID = id
		out.Version = doc.Source.Version + 1
		out.UpdatedAt = s.now()
		body, err := json.Marshal(out)
		if err != nil {
			return repository.AccessFailure(op, err)
		}

		res, err := c.Index(s.index, bytes.NewReader(body),
			c.Index.WithContext(ctx),
			c.Index.WithDocumentID(id),
			c.Index.WithIfSeqNo(doc.SeqNo),
			c.Index.WithIfPrimaryTerm(doc.PrimaryTerm),
			c.Index.WithRefresh(s.refresh),
		)
		if err != nil {
			return repository.AccessFailure(op, err)
		}
		defer closeBody(res)
		switch {
		case res.StatusCode == http.StatusConflict:
			return repository.E(repository.KindInvalid, op, id, responseError(res))
		case res.IsError():
			return repository.AccessFailure(op, responseError(res))
		}
		return nil
	})
	if err != nil {
		return model.Resource{}, err
	}
	return out, nil
}

type searchRequest struct {
	From           int              `json:"from"`
	Size           int              `json:"size"`
	TrackTotalHits bool             `json:"track_total_hits"`
	Sort           []map[string]any `json:"sort"`
	Query          map[string]any   `json:"query"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source model.Resource `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *resourceStore) List(ctx context.Context, req repository.PageRequest) (repository.Envelope[model.Resource], error) {
	const op = "elasticsearch.List"
	w := req.Window()
	body, err := json.Marshal(searchRequest{
		From:           w.Offset(),
		Size:           w.MaxRows,
		TrackTotalHits: true,
		Sort: []map[string]any{
			{"created_at": "asc"},
			{"id": "asc"},
		},
		Query: map[string]any{"match_all": map[string]any{}},
	})
	if err != nil {
		return repository.Envelope[model.Resource]{}, repository.AccessFailure(op, err)
	}

	var out searchResponse
	err = s.gw.Execute(ctx, func(ctx context.Context, c *Conn) error {
		res, err := c.Search(
			c.Search.WithContext(ctx),
			c.Search.WithIndex(s.index),
			c.Search.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return repository.AccessFailure(op, err)
		}
		defer closeBody(res)
		if res.IsError() {
			return repository.AccessFailure(op, responseError(res))
		}
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return repository.AccessFailure(op, fmt.Errorf("decode search response: %w", err))
		}
		return nil
	})
	if err != nil {
		return repository.Envelope[model.Resource]{}, err
	}

	items := make([]model.Resource, 0, len(out.Hits.Hits))
	for _, hit := range out.Hits.Hits {
		items = append(items, hit.Source)
	}
	return repository.Paginate(req, out.Hits.Total.Value, items), nil
}

func (s *resourceStore) Ping(ctx context.Context) error {
	return s.gw.Execute(ctx, func(ctx context.Context, c *Conn) error {
		res, err := c.Ping(c.Ping.WithContext(ctx))
		if err != nil {
			return err
		}
		defer closeBody(res)
		if res.IsError() {
			return responseError(res)
		}
		return nil
	})
}

// EnsureSchema creates the index with its mapping unless it already exists.
func (s *resourceStore) EnsureSchema(ctx context.Context) error {
	const op = "elasticsearch.EnsureSchema"
	return s.gw.Execute(ctx, func(ctx context.Context, c *Conn) error {
		exists, err := c.Indices.Exists([]string{s.index}, c.Indices.Exists.WithContext(ctx))
		if err != nil {
			return repository.AccessFailure(op, err)
		}
		defer closeBody(exists)
		switch exists.StatusCode {
		case http.StatusOK:
			return nil
		case http.StatusNotFound:
		default:
			return repository.AccessFailure(op, responseError(exists))
		}

		res, err := c.Indices.Create(s.index,
			c.Indices.Create.WithContext(ctx),
			c.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		)
		if err != nil {
			return repository.AccessFailure(op, err)
		}
		defer closeBody(res)
		if res.IsError() {
			body := readBody(res)
			// lost a race with another instance creating the same index
			if res.StatusCode == http.StatusBadRequest && strings.Contains(body, "resource_already_exists_exception") {
				return nil
			}
			return repository.AccessFailure(op, statusError(res, body))
		}
		return nil
	})
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}

func readBody(res *esapi.Response) string {
	if res.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return string(b)
}

// responseError consumes the body; use statusError when it was already read.
func responseError(res *esapi.Response) error {
	return statusError(res, readBody(res))
}

func statusError(res *esapi.Response, body string) error {
	return fmt.Errorf("elasticsearch %s: %s", res.Status(), strings.TrimSpace(body))
}

var _ repository.Store = (*resourceStore)(nil)
