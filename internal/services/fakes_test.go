package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/Code4me2/data-compose/internal/platform/apierr"
	"github.com/Code4me2/data-compose/internal/platform/elastic"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// stubMemory pins the memory gauge so batch guards behave the same on
// any test host.
func stubMemory(t *testing.T, usedPercent float64) {
	t.Helper()
	orig := virtualMemory
	virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: usedPercent}, nil
	}
	t.Cleanup(func() { virtualMemory = orig })
}

// fakeEmbedder returns fixed vectors or a canned error and records the
// inputs it saw.
type fakeEmbedder struct {
	mu     sync.Mutex
	inputs [][]string
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, inputs)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	vec := f.vector
	if vec == nil {
		vec = []float32{0.1, 0.2, 0.3}
	}
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "BAAI/bge-small-en-v1.5" }

func (f *fakeEmbedder) lastInput(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		t.Fatal("embedder was never called")
	}
	batch := f.inputs[len(f.inputs)-1]
	if len(batch) != 1 {
		t.Fatalf("last embed batch = %v", batch)
	}
	return batch[0]
}

// fakeStore is a function-field elastic.Store for tests that assert on
// the exact bodies a service sends.
type fakeStore struct {
	PutFn        func(ctx context.Context, id string, doc map[string]any, opts *elastic.WriteOptions) error
	GetFn        func(ctx context.Context, id string) (*elastic.Document, error)
	SearchFn     func(ctx context.Context, body map[string]any) (*elastic.SearchResult, error)
	SearchAllFn  func(ctx context.Context, filters []map[string]any, size int) ([]elastic.Hit, error)
	AggregateFn  func(ctx context.Context, filters []map[string]any, aggs map[string]any) (map[string]elastic.AggResult, error)
	CountFn      func(ctx context.Context, filters []map[string]any) (int, error)
	PingFn       func(ctx context.Context) error
	EnsureIdxFn  func(ctx context.Context) (bool, error)
	IndexNameVal string
}

func (f *fakeStore) Put(ctx context.Context, id string, doc map[string]any, opts *elastic.WriteOptions) error {
	if f.PutFn != nil {
		return f.PutFn(ctx, id, doc, opts)
	}
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*elastic.Document, error) {
	if f.GetFn != nil {
		return f.GetFn(ctx, id)
	}
	return nil, &elastic.OperationError{Code: elastic.OperationErrorNotFound}
}

func (f *fakeStore) Search(ctx context.Context, body map[string]any) (*elastic.SearchResult, error) {
	if f.SearchFn != nil {
		return f.SearchFn(ctx, body)
	}
	return &elastic.SearchResult{}, nil
}

func (f *fakeStore) SearchAll(ctx context.Context, filters []map[string]any, size int) ([]elastic.Hit, error) {
	if f.SearchAllFn != nil {
		return f.SearchAllFn(ctx, filters, size)
	}
	return nil, nil
}

func (f *fakeStore) Aggregate(ctx context.Context, filters []map[string]any, aggs map[string]any) (map[string]elastic.AggResult, error) {
	if f.AggregateFn != nil {
		return f.AggregateFn(ctx, filters, aggs)
	}
	return map[string]elastic.AggResult{}, nil
}

func (f *fakeStore) Count(ctx context.Context, filters []map[string]any) (int, error) {
	if f.CountFn != nil {
		return f.CountFn(ctx, filters)
	}
	return 0, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.PingFn != nil {
		return f.PingFn(ctx)
	}
	return nil
}

func (f *fakeStore) EnsureIndex(ctx context.Context) (bool, error) {
	if f.EnsureIdxFn != nil {
		return f.EnsureIdxFn(ctx)
	}
	return false, nil
}

func (f *fakeStore) IndexName() string {
	if f.IndexNameVal != "" {
		return f.IndexNameVal
	}
	return "judicial-documents"
}

func unavailableStoreErr() error {
	return &elastic.OperationError{
		Code:    elastic.OperationErrorTransportFailed,
		Message: "connection refused",
	}
}

// memStore is an in-memory elastic.Store with enough term-query
// evaluation for the service flows: filter/must of term and terms
// clauses, terms/max aggregations, and CAS semantics on Put.
type memStore struct {
	mu    sync.Mutex
	docs  map[string]*memDoc
	order []string

	// putHook runs before the normal Put path; a non-nil result is
	// returned to the caller unchanged.
	putHook func(id string, opts *elastic.WriteOptions) error
}

type memDoc struct {
	source      map[string]any
	seqNo       int64
	primaryTerm int64
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]*memDoc{}}
}

func deepCopy(src map[string]any) map[string]any {
	raw, err := json.Marshal(src)
	if err != nil {
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func (m *memStore) Put(ctx context.Context, id string, doc map[string]any, opts *elastic.WriteOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putHook != nil {
		if err := m.putHook(id, opts); err != nil {
			return err
		}
	}
	existing := m.docs[id]
	if opts != nil && opts.IfSeqNo != nil {
		if existing == nil || *opts.IfSeqNo != existing.seqNo || *opts.IfPrimaryTerm != existing.primaryTerm {
			return &elastic.OperationError{Code: elastic.OperationErrorVersionConflict, StatusCode: 409}
		}
	}
	next := &memDoc{source: deepCopy(doc), primaryTerm: 1}
	if existing != nil {
		next.seqNo = existing.seqNo + 1
		next.primaryTerm = existing.primaryTerm
	} else {
		m.order = append(m.order, id)
	}
	m.docs[id] = next
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*elastic.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.docs[id]
	if doc == nil {
		return nil, &elastic.OperationError{
			Code:    elastic.OperationErrorNotFound,
			Message: fmt.Sprintf("document %q not found", id),
		}
	}
	return &elastic.Document{
		ID:          id,
		Source:      deepCopy(doc.source),
		SeqNo:       doc.seqNo,
		PrimaryTerm: doc.primaryTerm,
	}, nil
}

func (m *memStore) Search(ctx context.Context, body map[string]any) (*elastic.SearchResult, error) {
	query, _ := body["query"].(map[string]any)
	size := 10
	if s, ok := body["size"].(int); ok {
		size = s
	}
	hits := m.matching(query)
	total := len(hits)
	if len(hits) > size {
		hits = hits[:size]
	}
	return &elastic.SearchResult{Hits: hits, Total: total}, nil
}

func (m *memStore) SearchAll(ctx context.Context, filters []map[string]any, size int) ([]elastic.Hit, error) {
	hits := m.matching(elastic.FilterQuery(filters))
	if size > 0 && len(hits) > size {
		hits = hits[:size]
	}
	return hits, nil
}

func (m *memStore) Aggregate(ctx context.Context, filters []map[string]any, aggs map[string]any) (map[string]elastic.AggResult, error) {
	hits := m.matching(elastic.FilterQuery(filters))
	out := map[string]elastic.AggResult{}
	for name, rawSpec := range aggs {
		spec, _ := rawSpec.(map[string]any)
		if terms, ok := spec["terms"].(map[string]any); ok {
			field, _ := terms["field"].(string)
			counts := map[string]int{}
			var keys []string
			for _, hit := range hits {
				v := valueAt(hit.Source, field)
				if v == nil {
					continue
				}
				key := fmt.Sprint(v)
				if counts[key] == 0 {
					keys = append(keys, key)
				}
				counts[key]++
			}
			var result elastic.AggResult
			for _, key := range keys {
				result.Buckets = append(result.Buckets, elastic.AggBucket{Key: key, DocCount: counts[key]})
			}
			out[name] = result
			continue
		}
		if max, ok := spec["max"].(map[string]any); ok {
			field, _ := max["field"].(string)
			var best *float64
			for _, hit := range hits {
				f, ok := toFloat(valueAt(hit.Source, field))
				if !ok {
					continue
				}
				if best == nil || f > *best {
					v := f
					best = &v
				}
			}
			out[name] = elastic.AggResult{Value: best}
		}
	}
	return out, nil
}

func (m *memStore) Count(ctx context.Context, filters []map[string]any) (int, error) {
	return len(m.matching(elastic.FilterQuery(filters))), nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) EnsureIndex(ctx context.Context) (bool, error) { return false, nil }

func (m *memStore) IndexName() string { return "judicial-documents" }

func (m *memStore) matching(query map[string]any) []elastic.Hit {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []elastic.Hit
	for _, id := range m.order {
		doc := m.docs[id]
		if evalQuery(query, doc.source) {
			hits = append(hits, elastic.Hit{ID: id, Score: 1, Source: deepCopy(doc.source)})
		}
	}
	return hits
}

func evalQuery(query, source map[string]any) bool {
	if query == nil {
		return true
	}
	if _, ok := query["match_all"]; ok {
		return true
	}
	if term, ok := query["term"].(map[string]any); ok {
		for field, want := range term {
			if fmt.Sprint(valueAt(source, field)) != fmt.Sprint(want) {
				return false
			}
		}
		return true
	}
	if terms, ok := query["terms"].(map[string]any); ok {
		for field, rawWant := range terms {
			got := fmt.Sprint(valueAt(source, field))
			matched := false
			switch want := rawWant.(type) {
			case []string:
				for _, w := range want {
					if got == w {
						matched = true
					}
				}
			case []any:
				for _, w := range want {
					if got == fmt.Sprint(w) {
						matched = true
					}
				}
			}
			if !matched {
				return false
			}
		}
		return true
	}
	if boolQuery, ok := query["bool"].(map[string]any); ok {
		for _, section := range []string{"must", "filter"} {
			for _, clause := range clauseList(boolQuery[section]) {
				if !evalQuery(clause, source) {
					return false
				}
			}
		}
		return true
	}
	return false
}

func clauseList(raw any) []map[string]any {
	switch v := raw.(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func valueAt(source map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = source
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asAPIError(t *testing.T, err error) *apierr.Error {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("error is not an api error: %v", err)
	}
	return ae
}

func assertAPIError(t *testing.T, err error, wantStatus int, wantCode string) {
	t.Helper()
	ae := asAPIError(t, err)
	if ae.Status != wantStatus || ae.Code != wantCode {
		t.Fatalf("api error = status %d code %q, want %d %q: %v", ae.Status, ae.Code, wantStatus, wantCode, err)
	}
}
