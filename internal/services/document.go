package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Code4me2/data-compose/internal/hierarchy"
	"github.com/Code4me2/data-compose/internal/platform/elastic"
	"github.com/Code4me2/data-compose/internal/platform/embedding"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

// DocumentSpec is one document in an ingest request.
type DocumentSpec struct {
	DocumentID     string         `json:"document_id"`
	Content        string         `json:"content"`
	Summary        string         `json:"summary"`
	Metadata       map[string]any `json:"metadata"`
	DocumentType   string         `json:"document_type"`
	ParentID       string         `json:"parent_id"`
	HierarchyLevel int            `json:"hierarchy_level"`
	WorkflowID     string         `json:"workflow_id"`
	IsFinalSummary bool           `json:"is_final_summary"`
	SummaryType    string         `json:"summary_type"`

	// GenerateEmbedding defaults to true; RequireEmbedding turns an
	// embedding failure from a warning into a per-document error.
	GenerateEmbedding *bool `json:"generate_embedding"`
	RequireEmbedding  bool  `json:"require_embedding"`
}

// WorkflowSummary reports per-workflow counts for one ingest batch.
type WorkflowSummary struct {
	DocumentCount   int  `json:"document_count"`
	HasFinalSummary bool `json:"has_final_summary"`
}

type IngestResult struct {
	DocumentsProcessed int                         `json:"documents_processed"`
	DocumentIDs        []string                    `json:"document_ids"`
	WorkflowSummary    map[string]*WorkflowSummary `json:"workflow_summary"`
	Warnings           []string                    `json:"warnings,omitempty"`
	Errors             []string                    `json:"errors,omitempty"`
	Status             string                      `json:"status"`
}

type DocumentService interface {
	Ingest(ctx context.Context, specs []DocumentSpec) (*IngestResult, error)
}

type documentService struct {
	log      *logger.Logger
	store    elastic.Store
	embedder embedding.Client
}

func NewDocumentService(log *logger.Logger, store elastic.Store, embedder embedding.Client) DocumentService {
	return &documentService{
		log:      log.With("service", "DocumentService"),
		store:    store,
		embedder: embedder,
	}
}

func (s *documentService) Ingest(ctx context.Context, specs []DocumentSpec) (*IngestResult, error) {
	if len(specs) == 0 {
		return nil, validationError(fmt.Errorf("at least one document is required"))
	}

	nodes := make([]hierarchy.Node, len(specs))
	for i, spec := range specs {
		n := hierarchy.Node{
			DocumentID:     spec.DocumentID,
			Content:        spec.Content,
			Summary:        spec.Summary,
			DocumentType:   spec.DocumentType,
			SummaryType:    spec.SummaryType,
			Level:          spec.HierarchyLevel,
			ParentID:       spec.ParentID,
			WorkflowID:     spec.WorkflowID,
			IsFinalSummary: spec.IsFinalSummary,
			Metadata:       spec.Metadata,
		}
		if n.DocumentID == "" {
			n.DocumentID = uuid.New().String()
		}
		if n.WorkflowID == "" {
			n.WorkflowID = uuid.New().String()
		}
		n.Normalize()
		if err := n.Validate(); err != nil {
			return nil, validationError(fmt.Errorf("document %d: %w", i, err))
		}
		nodes[i] = n
	}

	if err := s.checkFinalSummaries(ctx, nodes); err != nil {
		return nil, err
	}

	result := &IngestResult{
		DocumentIDs:     []string{},
		WorkflowSummary: map[string]*WorkflowSummary{},
		Status:          "success",
	}

	for i := range nodes {
		node := &nodes[i]
		spec := specs[i]

		if spec.GenerateEmbedding == nil || *spec.GenerateEmbedding {
			if err := s.embed(ctx, node); err != nil {
				if spec.RequireEmbedding {
					result.Errors = append(result.Errors,
						fmt.Sprintf("document %s: embedding failed: %v", node.DocumentID, err))
					continue
				}
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("document %s: indexed without embedding: %v", node.DocumentID, err))
				s.log.Warn("Embedding failed; indexing without vector",
					"document_id", node.DocumentID,
					"error", err,
				)
			}
		}

		now := time.Now().UTC().Format(time.RFC3339)
		node.IngestionTimestamp = now
		if node.Metadata == nil {
			node.Metadata = map[string]any{}
		}
		if _, ok := node.Metadata["created_at"]; !ok {
			node.Metadata["created_at"] = now
		}

		if err := s.store.Put(ctx, node.DocumentID, node.Source(), nil); err != nil {
			if elastic.IsUnavailable(err) {
				return nil, unavailableError(err)
			}
			result.Errors = append(result.Errors,
				fmt.Sprintf("document %s: store write failed: %v", node.DocumentID, err))
			continue
		}

		result.DocumentsProcessed++
		result.DocumentIDs = append(result.DocumentIDs, node.DocumentID)
		ws := result.WorkflowSummary[node.WorkflowID]
		if ws == nil {
			ws = &WorkflowSummary{}
			result.WorkflowSummary[node.WorkflowID] = ws
		}
		ws.DocumentCount++
		if node.IsFinalSummary {
			ws.HasFinalSummary = true
		}

		if node.ParentID != "" {
			s.linkParent(ctx, node.ParentID, node.DocumentID)
		}
	}

	if len(result.Errors) > 0 {
		result.Status = "partial"
	}
	s.log.Info("Ingest batch complete",
		"documents_processed", result.DocumentsProcessed,
		"warnings", len(result.Warnings),
		"errors", len(result.Errors),
	)
	return result, nil
}

// checkFinalSummaries enforces at most one final summary per workflow
// before any document is written: the batch itself may not declare two,
// and a declared one may not collide with a stored one.
func (s *documentService) checkFinalSummaries(ctx context.Context, nodes []hierarchy.Node) error {
	declared := map[string]int{}
	for _, n := range nodes {
		if n.IsFinalSummary {
			declared[n.WorkflowID]++
		}
	}
	for wf, count := range declared {
		if count > 1 {
			return validationError(fmt.Errorf(
				"workflow %s declares %d final summaries in one batch; only one is allowed", wf, count))
		}
		existing, err := s.store.Count(ctx, []map[string]any{
			elastic.TermFilter("workflow.workflow_id", wf),
			elastic.TermFilter("workflow.is_final_summary", true),
		})
		if err != nil {
			return storeError(err)
		}
		if existing > 0 {
			return validationError(fmt.Errorf(
				"workflow %s already has a final summary; refusing the whole batch", wf))
		}
	}
	return nil
}

// embed picks the longer of content and summary as the embedding text;
// summaries of large documents carry more signal than a clipped body.
func (s *documentService) embed(ctx context.Context, node *hierarchy.Node) error {
	text := node.Content
	if len(node.Summary) > len(text) {
		text = node.Summary
	}
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return err
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embedder returned %d vectors for one input", len(vecs))
	}
	node.Embedding = vecs[0]
	return nil
}

// linkParent adds childID to the parent's children_ids. Best effort: a
// missing parent or a concurrent writer is logged, never retried, and
// never fails the ingest. The tree builder reads parent pointers, so a
// lost backlink does not break navigation.
func (s *documentService) linkParent(ctx context.Context, parentID, childID string) {
	doc, err := s.store.Get(ctx, parentID)
	if err != nil {
		s.log.Warn("Parent backlink skipped: parent fetch failed",
			"parent_id", parentID,
			"child_id", childID,
			"error", err,
		)
		return
	}

	hier, _ := doc.Source["hierarchy"].(map[string]any)
	if hier == nil {
		hier = map[string]any{}
		doc.Source["hierarchy"] = hier
	}
	children := toStringSlice(hier["children_ids"])
	for _, id := range children {
		if id == childID {
			return
		}
	}
	hier["children_ids"] = append(children, childID)

	parent := hierarchy.ParseNode(doc.ID, doc.Source)
	meta, _ := doc.Source["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		doc.Source["metadata"] = meta
	}
	tree, _ := meta["tree_metadata"].(map[string]any)
	if tree == nil {
		tree = map[string]any{}
		meta["tree_metadata"] = tree
	}
	tree["has_children"] = true
	if parent.ParentID == "" {
		tree["node_type"] = "root"
	} else {
		tree["node_type"] = "branch"
	}

	err = s.store.Put(ctx, doc.ID, doc.Source, &elastic.WriteOptions{
		IfSeqNo:       &doc.SeqNo,
		IfPrimaryTerm: &doc.PrimaryTerm,
	})
	switch {
	case err == nil:
	case elastic.IsVersionConflict(err):
		s.log.Warn("Parent backlink skipped: concurrent update",
			"parent_id", parentID,
			"child_id", childID,
		)
	default:
		s.log.Warn("Parent backlink failed",
			"parent_id", parentID,
			"child_id", childID,
			"error", err,
		)
	}
}

func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		out := make([]string, len(vals))
		copy(out, vals)
		return out
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
