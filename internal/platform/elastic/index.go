package elastic

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Code4me2/data-compose/internal/platform/ctxutil"
)

// indexMapping is the judicial-documents schema: analyzed text with a
// keyword subfield, an HNSW dense vector sized to the embedding model,
// and the hierarchy/workflow objects the tree queries filter on.
func indexMapping(dims int) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"index": map[string]any{
				"refresh_interval": "1s",
			},
			"analysis": map[string]any{
				"analyzer": map[string]any{
					"legal_analyzer": map[string]any{
						"type":      "standard",
						"stopwords": "_english_",
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"content": map[string]any{
					"type":     "text",
					"analyzer": "legal_analyzer",
					"fields": map[string]any{
						"keyword": map[string]any{
							"type":         "keyword",
							"ignore_above": 256,
						},
					},
				},
				"summary": map[string]any{
					"type":     "text",
					"analyzer": "legal_analyzer",
				},
				"embedding": map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
					"index_options": map[string]any{
						"type":            "hnsw",
						"m":               16,
						"ef_construction": 200,
					},
				},
				"document_type": map[string]any{
					"type": "keyword",
				},
				"hierarchy": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"level":        map[string]any{"type": "integer"},
						"parent_id":    map[string]any{"type": "keyword"},
						"children_ids": map[string]any{"type": "keyword"},
						"is_root":      map[string]any{"type": "boolean"},
					},
				},
				"workflow": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"workflow_id":      map[string]any{"type": "keyword"},
						"is_final_summary": map[string]any{"type": "boolean"},
						"summary_type":     map[string]any{"type": "keyword"},
					},
				},
				"metadata": map[string]any{
					"type":    "object",
					"dynamic": true,
				},
				"ingestion_timestamp": map[string]any{
					"type": "date",
				},
			},
		},
	}
}

// EnsureIndex creates the index with the standard mapping when it does
// not exist yet. Returns true when the index was created by this call.
func (s *esStore) EnsureIndex(ctx context.Context) (bool, error) {
	const op = "ensure_index"

	exists, err := s.indexExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := s.doJSON(ctx, op, http.MethodPut, s.indexPath(""), indexMapping(s.cfg.VectorDims), nil); err != nil {
		return false, err
	}
	s.log.Info("Created index", "index", s.cfg.Index, "vector_dims", s.cfg.VectorDims)
	return true, nil
}

func (s *esStore) indexExists(ctx context.Context) (bool, error) {
	const op = "index_exists"

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodHead, s.baseURL+s.indexPath(""), nil)
	if err != nil {
		return false, opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	s.authorize(req)
	resp, err := s.http.Do(req)
	if err != nil {
		return false, classifyHTTPCallError(op, "elasticsearch index check failed", err)
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("elasticsearch index check returned status=%d", resp.StatusCode),
		}
	}
}
