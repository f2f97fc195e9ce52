package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Code4me2/data-compose/internal/platform/elastic"
	"github.com/Code4me2/data-compose/internal/platform/embedding"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

// Search modes.
const (
	SearchTypeBM25   = "bm25"
	SearchTypeVector = "vector"
	SearchTypeHybrid = "hybrid"
)

const (
	defaultTopK = 10
	maxTopK     = 100
)

// Both halves of a hybrid query contribute equally.
const hybridBoost = 0.5

type SearchRequest struct {
	Query            string         `json:"query"`
	TopK             int            `json:"top_k"`
	SearchType       string         `json:"search_type"`
	Filters          map[string]any `json:"filters"`
	IncludeHierarchy bool           `json:"include_hierarchy"`
}

type SearchHit struct {
	DocumentID      string         `json:"document_id"`
	Content         string         `json:"content"`
	OriginalContent string         `json:"original_content"`
	Summary         string         `json:"summary,omitempty"`
	Score           float64        `json:"score"`
	Metadata        map[string]any `json:"metadata"`
	Hierarchy       map[string]any `json:"hierarchy,omitempty"`
	Workflow        map[string]any `json:"workflow,omitempty"`
}

type SearchResponse struct {
	Results      []SearchHit `json:"results"`
	TotalResults int         `json:"total_results"`
	SearchType   string      `json:"search_type"`
	Query        string      `json:"query"`
}

type SearchService interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

type searchService struct {
	log      *logger.Logger
	store    elastic.Store
	embedder embedding.Client
}

func NewSearchService(log *logger.Logger, store elastic.Store, embedder embedding.Client) SearchService {
	return &searchService{
		log:      log.With("service", "SearchService"),
		store:    store,
		embedder: embedder,
	}
}

func (s *searchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, validationError(fmt.Errorf("query is required"))
	}

	topK := req.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 1 || topK > maxTopK {
		return nil, validationError(fmt.Errorf("top_k must be between 1 and %d, got %d", maxTopK, req.TopK))
	}

	searchType := req.SearchType
	if searchType == "" {
		searchType = SearchTypeHybrid
	}

	filters := filterClauses(req.Filters)

	var body map[string]any
	switch searchType {
	case SearchTypeBM25:
		body = bm25Body(query, topK, filters)
	case SearchTypeVector:
		vec, err := s.embedQuery(ctx, query)
		if err != nil {
			return nil, unavailableError(fmt.Errorf("embedding provider unavailable: %w", err))
		}
		body = vectorBody(vec, topK, filters)
	case SearchTypeHybrid:
		vec, err := s.embedQuery(ctx, query)
		if err != nil {
			return nil, unavailableError(fmt.Errorf("embedding provider unavailable: %w", err))
		}
		body = hybridBody(query, vec, topK, filters)
	default:
		return nil, validationError(fmt.Errorf(
			"invalid search_type %q; valid: %s, %s, %s",
			req.SearchType, SearchTypeBM25, SearchTypeVector, SearchTypeHybrid,
		))
	}

	result, err := s.store.Search(ctx, body)
	if err != nil {
		return nil, storeError(err)
	}

	resp := &SearchResponse{
		Results:    make([]SearchHit, 0, len(result.Hits)),
		SearchType: searchType,
		Query:      query,
	}
	for _, hit := range result.Hits {
		resp.Results = append(resp.Results, s.renderHit(hit, req.IncludeHierarchy))
	}
	resp.TotalResults = len(resp.Results)

	s.log.Info("Search complete",
		"query", query,
		"search_type", searchType,
		"results", resp.TotalResults,
	)
	return resp, nil
}

func (s *searchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	return vecs[0], nil
}

// renderHit prefers the summary as the displayed content while keeping
// the raw text available under original_content.
func (s *searchService) renderHit(hit elastic.Hit, includeHierarchy bool) SearchHit {
	content, _ := hit.Source["content"].(string)
	summary, _ := hit.Source["summary"].(string)
	docType, _ := hit.Source["document_type"].(string)

	display := content
	if summary != "" {
		display = summary
	}

	meta := map[string]any{}
	if m, ok := hit.Source["metadata"].(map[string]any); ok {
		for k, v := range m {
			meta[k] = v
		}
	}
	meta["document_id"] = hit.ID
	if docType != "" {
		meta["document_type"] = docType
	}

	out := SearchHit{
		DocumentID:      hit.ID,
		Content:         display,
		OriginalContent: content,
		Summary:         summary,
		Score:           hit.Score,
		Metadata:        meta,
	}
	if includeHierarchy {
		if h, ok := hit.Source["hierarchy"].(map[string]any); ok {
			out.Hierarchy = h
		}
		if w, ok := hit.Source["workflow"].(map[string]any); ok {
			out.Workflow = w
		}
	}
	return out
}

// filterClauses turns the caller's flat field=value map into term
// clauses. Slice values become any-of terms clauses.
func filterClauses(filters map[string]any) []map[string]any {
	if len(filters) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(filters))
	for field, value := range filters {
		switch v := value.(type) {
		case []any:
			vals := make([]string, 0, len(v))
			for _, item := range v {
				vals = append(vals, fmt.Sprint(item))
			}
			out = append(out, elastic.TermsFilter(field, vals))
		case []string:
			out = append(out, elastic.TermsFilter(field, v))
		default:
			out = append(out, elastic.TermFilter(field, value))
		}
	}
	return out
}

func bm25Body(query string, topK int, filters []map[string]any) map[string]any {
	boolQuery := map[string]any{
		"must": []map[string]any{
			{"match": map[string]any{"content": query}},
		},
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return map[string]any{
		"size":  topK,
		"query": map[string]any{"bool": boolQuery},
	}
}

func vectorBody(vector []float32, topK int, filters []map[string]any) map[string]any {
	return map[string]any{
		"size": topK,
		"query": map[string]any{
			"script_score": map[string]any{
				"query":  elastic.FilterQuery(filters),
				"script": cosineScript(vector),
			},
		},
	}
}

func hybridBody(query string, vector []float32, topK int, filters []map[string]any) map[string]any {
	boolQuery := map[string]any{
		"should": []map[string]any{
			{
				"match": map[string]any{
					"content": map[string]any{
						"query": query,
						"boost": hybridBoost,
					},
				},
			},
			{
				"script_score": map[string]any{
					"query":  map[string]any{"match_all": map[string]any{}},
					"script": cosineScript(vector),
					"boost":  hybridBoost,
				},
			},
		},
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return map[string]any{
		"size":  topK,
		"query": map[string]any{"bool": boolQuery},
	}
}

// cosineScript shifts cosine similarity by +1 so scores stay positive;
// script_score rejects negative scores.
func cosineScript(vector []float32) map[string]any {
	return map[string]any{
		"source": "cosineSimilarity(params.query_vector, 'embedding') + 1.0",
		"params": map[string]any{"query_vector": vector},
	}
}
