package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Code4me2/data-compose/internal/platform/ctxutil"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

// Document is a single stored node with its optimistic-concurrency token.
type Document struct {
	ID          string
	Source      map[string]any
	SeqNo       int64
	PrimaryTerm int64
}

// Hit is one ranked search result.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]any
}

// SearchResult is the parsed hits section of a ranked query.
type SearchResult struct {
	Hits  []Hit
	Total int
}

// WriteOptions conditions a Put on the document version last read.
// Both fields must be set together; the write fails with a version
// conflict when the stored document has moved on.
type WriteOptions struct {
	IfSeqNo       *int64
	IfPrimaryTerm *int64
}

// AggBucket is one terms-aggregation bucket.
type AggBucket struct {
	Key      any
	DocCount int
}

// AggResult carries either a metric value (max, min, ...) or terms buckets.
type AggResult struct {
	Value   *float64
	Buckets []AggBucket
}

type Store interface {
	Put(ctx context.Context, id string, doc map[string]any, opts *WriteOptions) error
	Get(ctx context.Context, id string) (*Document, error)
	Search(ctx context.Context, body map[string]any) (*SearchResult, error)
	SearchAll(ctx context.Context, filters []map[string]any, size int) ([]Hit, error)
	Aggregate(ctx context.Context, filters []map[string]any, aggs map[string]any) (map[string]AggResult, error)
	Count(ctx context.Context, filters []map[string]any) (int, error)
	Ping(ctx context.Context) error
	EnsureIndex(ctx context.Context) (bool, error)
	IndexName() string
}

type esStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

// NewStore builds the adapter without probing the cluster; callers decide
// whether an unreachable store at startup is fatal (the health endpoint
// and EnsureIndex report reachability on demand).
func NewStore(log *logger.Logger, cfg Config) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	s := &esStore{
		log:     log.With("service", "ElasticStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	log.Info(
		"Elasticsearch store configured",
		"url", s.baseURL,
		"index", cfg.Index,
		"vector_dims", cfg.VectorDims,
	)
	return s, nil
}

func (s *esStore) IndexName() string {
	return s.cfg.Index
}

func (s *esStore) Put(ctx context.Context, id string, doc map[string]any, opts *WriteOptions) error {
	const op = "put"
	if strings.TrimSpace(id) == "" {
		return opErr(op, OperationErrorValidation, "document id is required", nil)
	}
	if doc == nil {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("document %q has no body", id), nil)
	}

	path := s.indexPath("/_doc/" + id + "?refresh=true")
	if opts != nil {
		if (opts.IfSeqNo == nil) != (opts.IfPrimaryTerm == nil) {
			return opErr(op, OperationErrorValidation, "if_seq_no and if_primary_term must be set together", nil)
		}
		if opts.IfSeqNo != nil {
			path += "&if_seq_no=" + strconv.FormatInt(*opts.IfSeqNo, 10) +
				"&if_primary_term=" + strconv.FormatInt(*opts.IfPrimaryTerm, 10)
		}
	}

	return s.doJSON(ctx, op, http.MethodPut, path, doc, nil)
}

func (s *esStore) Get(ctx context.Context, id string) (*Document, error) {
	const op = "get"
	if strings.TrimSpace(id) == "" {
		return nil, opErr(op, OperationErrorValidation, "document id is required", nil)
	}

	var raw struct {
		ID          string         `json:"_id"`
		Found       bool           `json:"found"`
		Source      map[string]any `json:"_source"`
		SeqNo       int64          `json:"_seq_no"`
		PrimaryTerm int64          `json:"_primary_term"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, s.indexPath("/_doc/"+id), nil, &raw); err != nil {
		return nil, err
	}
	if !raw.Found {
		return nil, opErr(op, OperationErrorNotFound, fmt.Sprintf("document %q not found", id), nil)
	}
	return &Document{
		ID:          raw.ID,
		Source:      raw.Source,
		SeqNo:       raw.SeqNo,
		PrimaryTerm: raw.PrimaryTerm,
	}, nil
}

func (s *esStore) Search(ctx context.Context, body map[string]any) (*SearchResult, error) {
	const op = "search"
	if body == nil {
		return nil, opErr(op, OperationErrorValidation, "search body required", nil)
	}

	var raw searchEnvelope
	if err := s.doJSON(ctx, op, http.MethodPost, s.indexPath("/_search"), body, &raw); err != nil {
		return nil, err
	}
	return parseSearchEnvelope(&raw), nil
}

func (s *esStore) SearchAll(ctx context.Context, filters []map[string]any, size int) ([]Hit, error) {
	const op = "search_all"
	if size <= 0 {
		size = 10000
	}

	body := map[string]any{
		"query": FilterQuery(filters),
		"size":  size,
	}
	var raw searchEnvelope
	if err := s.doJSON(ctx, op, http.MethodPost, s.indexPath("/_search"), body, &raw); err != nil {
		return nil, err
	}
	return parseSearchEnvelope(&raw).Hits, nil
}

func (s *esStore) Aggregate(ctx context.Context, filters []map[string]any, aggs map[string]any) (map[string]AggResult, error) {
	const op = "aggregate"
	if len(aggs) == 0 {
		return nil, opErr(op, OperationErrorValidation, "aggregation spec required", nil)
	}

	body := map[string]any{
		"query": FilterQuery(filters),
		"size":  0,
		"aggs":  aggs,
	}
	var raw struct {
		Aggregations map[string]aggEnvelope `json:"aggregations"`
	}
	if err := s.doJSON(ctx, op, http.MethodPost, s.indexPath("/_search"), body, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]AggResult, len(raw.Aggregations))
	for name, agg := range raw.Aggregations {
		result := AggResult{Value: agg.Value}
		for _, b := range agg.Buckets {
			result.Buckets = append(result.Buckets, AggBucket{
				Key:      b.Key,
				DocCount: b.DocCount,
			})
		}
		out[name] = result
	}
	return out, nil
}

func (s *esStore) Count(ctx context.Context, filters []map[string]any) (int, error) {
	const op = "count"

	body := map[string]any{
		"query": FilterQuery(filters),
	}
	var raw struct {
		Count int `json:"count"`
	}
	if err := s.doJSON(ctx, op, http.MethodPost, s.indexPath("/_count"), body, &raw); err != nil {
		return 0, err
	}
	return raw.Count, nil
}

func (s *esStore) Ping(ctx context.Context) error {
	const op = "ping"

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodHead, s.baseURL+"/", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ping request failed", err)
	}
	s.authorize(req)
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "elasticsearch ping failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("elasticsearch ping returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

// FilterQuery wraps exact-match filter clauses into a bool query; an
// empty clause list matches everything.
func FilterQuery(filters []map[string]any) map[string]any {
	if len(filters) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{
		"bool": map[string]any{
			"filter": filters,
		},
	}
}

// TermFilter builds one exact-match filter clause.
func TermFilter(field string, value any) map[string]any {
	return map[string]any{
		"term": map[string]any{field: value},
	}
}

// TermsFilter builds one any-of filter clause.
func TermsFilter(field string, values []string) map[string]any {
	return map[string]any{
		"terms": map[string]any{field: values},
	}
}

type searchEnvelope struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Score  float64        `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type aggEnvelope struct {
	Value   *float64 `json:"value"`
	Buckets []struct {
		Key      any `json:"key"`
		DocCount int `json:"doc_count"`
	} `json:"buckets"`
}

func parseSearchEnvelope(raw *searchEnvelope) *SearchResult {
	out := &SearchResult{
		Hits:  make([]Hit, 0, len(raw.Hits.Hits)),
		Total: raw.Hits.Total.Value,
	}
	for _, h := range raw.Hits.Hits {
		out.Hits = append(out.Hits, Hit{
			ID:     h.ID,
			Score:  h.Score,
			Source: h.Source,
		})
	}
	return out
}

func (s *esStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "elasticsearch request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := OperationErrorQueryFailed
		switch resp.StatusCode {
		case http.StatusNotFound:
			code = OperationErrorNotFound
		case http.StatusConflict:
			code = OperationErrorVersionConflict
		}
		return &OperationError{
			Code:       code,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("elasticsearch http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	if out == nil {
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode elasticsearch response failed", err)
	}
	return nil
}

func (s *esStore) authorize(req *http.Request) {
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+s.cfg.APIKey)
	}
}

func (s *esStore) indexPath(suffix string) string {
	path := "/" + s.cfg.Index
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
