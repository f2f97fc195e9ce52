package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Code4me2/data-compose/internal/hierarchy"
	"github.com/Code4me2/data-compose/internal/platform/elastic"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

// One workflow should stay well under this; the cap bounds the tree
// assembly fetch.
const maxWorkflowDocuments = 10000

type FinalSummaryDocument struct {
	DocumentID       string         `json:"document_id"`
	ContentPreview   string         `json:"content_preview"`
	ContentFull      string         `json:"content_full"`
	ContentLength    int            `json:"content_length"`
	DocumentType     string         `json:"document_type"`
	SummaryType      string         `json:"summary_type"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        string         `json:"created_at,omitempty"`
	ProcessingStatus string         `json:"processing_status"`
}

type WorkflowTreeMetadata struct {
	TotalDocuments   int            `json:"total_documents"`
	MaxLevel         int            `json:"max_level"`
	DocumentsByType  map[string]int `json:"documents_by_type"`
	DocumentsByLevel map[string]int `json:"documents_by_level"`
	SummaryTypes     map[string]int `json:"summary_types"`
}

type NavigationContext struct {
	IsRoot         bool     `json:"is_root"`
	HasChildren    bool     `json:"has_children"`
	ChildrenIDs    []string `json:"children_ids"`
	ParentID       string   `json:"parent_id,omitempty"`
	HierarchyLevel int      `json:"hierarchy_level"`
	TotalChildren  int      `json:"total_children"`
}

type FinalSummaryResponse struct {
	WorkflowID        string               `json:"workflow_id"`
	FinalSummary      FinalSummaryDocument `json:"final_summary"`
	TreeMetadata      WorkflowTreeMetadata `json:"tree_metadata"`
	NavigationContext NavigationContext    `json:"navigation_context"`
	Status            string               `json:"status"`
}

type CompleteTreeRequest struct {
	WorkflowID     string
	MaxDepth       int
	IncludeContent bool
}

type CompleteTreeMetadata struct {
	TotalDocuments int  `json:"total_documents"`
	TotalRoots     int  `json:"total_roots"`
	MaxDepthFound  int  `json:"max_depth_found"`
	Truncated      bool `json:"truncated"`
}

type TreeQueryMetadata struct {
	MaxDepth       int  `json:"max_depth"`
	IncludeContent bool `json:"include_content"`
}

type CompleteTreeResponse struct {
	WorkflowID    string                `json:"workflow_id"`
	Tree          []*hierarchy.TreeNode `json:"tree"`
	TreeMetadata  CompleteTreeMetadata  `json:"tree_metadata"`
	QueryMetadata TreeQueryMetadata     `json:"query_metadata"`
	Status        string                `json:"status"`
}

// WorkflowService answers workflow-scoped reads: the single final
// summary and the fully assembled document tree.
type WorkflowService interface {
	GetFinalSummary(ctx context.Context, workflowID string) (*FinalSummaryResponse, error)
	GetCompleteTree(ctx context.Context, req CompleteTreeRequest) (*CompleteTreeResponse, error)
}

type workflowService struct {
	log   *logger.Logger
	store elastic.Store
}

func NewWorkflowService(log *logger.Logger, store elastic.Store) WorkflowService {
	return &workflowService{
		log:   log.With("service", "WorkflowService"),
		store: store,
	}
}

func (s *workflowService) GetFinalSummary(ctx context.Context, workflowID string) (*FinalSummaryResponse, error) {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return nil, validationError(fmt.Errorf("workflow_id is required"))
	}

	workflowFilter := []map[string]any{
		elastic.TermFilter("workflow.workflow_id", workflowID),
	}

	// The summary fetch and the workflow-wide aggregations are
	// independent reads; run them together.
	var (
		summaryHits *elastic.SearchResult
		totalDocs   int
		aggs        map[string]elastic.AggResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		// size 2: one is the answer, two means the invariant is broken.
		summaryHits, err = s.store.Search(gctx, map[string]any{
			"size": 2,
			"query": map[string]any{
				"bool": map[string]any{
					"must": []map[string]any{
						elastic.TermFilter("workflow.workflow_id", workflowID),
						elastic.TermFilter("workflow.is_final_summary", true),
					},
				},
			},
		})
		return err
	})
	g.Go(func() error {
		var err error
		totalDocs, err = s.store.Count(gctx, workflowFilter)
		return err
	})
	g.Go(func() error {
		var err error
		aggs, err = s.store.Aggregate(gctx, workflowFilter, map[string]any{
			"by_type":       map[string]any{"terms": map[string]any{"field": "document_type"}},
			"by_level":      map[string]any{"terms": map[string]any{"field": "hierarchy.level"}},
			"max_level":     map[string]any{"max": map[string]any{"field": "hierarchy.level"}},
			"summary_types": map[string]any{"terms": map[string]any{"field": "workflow.summary_type"}},
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeError(err)
	}

	switch len(summaryHits.Hits) {
	case 0:
		return nil, notFoundError(fmt.Errorf("no final summary found for workflow %s", workflowID))
	case 1:
	default:
		return nil, conflictError(fmt.Errorf(
			"workflow %s has %d final summaries; expected exactly one", workflowID, summaryHits.Total))
	}

	hit := summaryHits.Hits[0]
	node := hierarchy.ParseNode(hit.ID, hit.Source)

	return &FinalSummaryResponse{
		WorkflowID: workflowID,
		FinalSummary: FinalSummaryDocument{
			DocumentID:       node.DocumentID,
			ContentPreview:   hierarchy.Preview(node.Content, hierarchy.PreviewContext),
			ContentFull:      node.Content,
			ContentLength:    len(node.Content),
			DocumentType:     node.DocumentType,
			SummaryType:      node.SummaryType,
			Metadata:         node.Metadata,
			CreatedAt:        node.CreatedAt(),
			ProcessingStatus: node.ProcessingStatus(),
		},
		TreeMetadata: WorkflowTreeMetadata{
			TotalDocuments:   totalDocs,
			MaxLevel:         aggMax(aggs, "max_level"),
			DocumentsByType:  aggBuckets(aggs, "by_type"),
			DocumentsByLevel: aggBuckets(aggs, "by_level"),
			SummaryTypes:     aggBuckets(aggs, "summary_types"),
		},
		NavigationContext: NavigationContext{
			IsRoot:         node.IsRoot(),
			HasChildren:    node.HasChildren(),
			ChildrenIDs:    childrenOrEmpty(node),
			ParentID:       node.ParentID,
			HierarchyLevel: node.Level,
			TotalChildren:  len(node.ChildrenIDs),
		},
		Status: "success",
	}, nil
}

func (s *workflowService) GetCompleteTree(ctx context.Context, req CompleteTreeRequest) (*CompleteTreeResponse, error) {
	workflowID := strings.TrimSpace(req.WorkflowID)
	if workflowID == "" {
		return nil, validationError(fmt.Errorf("workflow_id is required"))
	}
	maxDepth := req.MaxDepth
	if maxDepth == 0 {
		maxDepth = hierarchy.DefaultMaxTreeDepth
	}
	if maxDepth < 1 || maxDepth > hierarchy.MaxTreeDepth {
		return nil, validationError(fmt.Errorf(
			"max_depth must be between 1 and %d, got %d", hierarchy.MaxTreeDepth, req.MaxDepth))
	}

	hits, err := s.store.SearchAll(ctx, []map[string]any{
		elastic.TermFilter("workflow.workflow_id", workflowID),
	}, maxWorkflowDocuments)
	if err != nil {
		return nil, storeError(err)
	}
	if len(hits) == 0 {
		return nil, notFoundError(fmt.Errorf("no documents found for workflow %s", workflowID))
	}

	nodes := make([]hierarchy.Node, 0, len(hits))
	for _, hit := range hits {
		nodes = append(nodes, hierarchy.ParseNode(hit.ID, hit.Source))
	}

	forest := hierarchy.BuildForest(nodes, maxDepth, req.IncludeContent)
	if len(forest.UnreachableIDs) > 0 {
		s.log.Warn("Workflow tree has unreachable documents (parent cycle or broken links)",
			"workflow_id", workflowID,
			"unreachable", forest.UnreachableIDs,
		)
	}

	tree := forest.Roots
	if tree == nil {
		tree = []*hierarchy.TreeNode{}
	}
	return &CompleteTreeResponse{
		WorkflowID: workflowID,
		Tree:       tree,
		TreeMetadata: CompleteTreeMetadata{
			TotalDocuments: forest.TotalNodes,
			TotalRoots:     len(forest.Roots),
			MaxDepthFound:  forest.MaxDepthFound,
			Truncated:      forest.Truncated,
		},
		QueryMetadata: TreeQueryMetadata{
			MaxDepth:       maxDepth,
			IncludeContent: req.IncludeContent,
		},
		Status: "success",
	}, nil
}

func aggBuckets(aggs map[string]elastic.AggResult, name string) map[string]int {
	out := map[string]int{}
	for _, bucket := range aggs[name].Buckets {
		out[bucketKey(bucket.Key)] = bucket.DocCount
	}
	return out
}

func aggMax(aggs map[string]elastic.AggResult, name string) int {
	if v := aggs[name].Value; v != nil {
		return int(*v)
	}
	return 0
}

// bucketKey flattens terms keys to strings; numeric keys (hierarchy
// levels) come back from the store as float64.
func bucketKey(key any) string {
	switch v := key.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
