package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/Code4me2/data-compose/internal/hierarchy"
	"github.com/Code4me2/data-compose/internal/platform/elastic"
)

func newDocumentService(t *testing.T, store elastic.Store, embedder *fakeEmbedder) DocumentService {
	t.Helper()
	if embedder == nil {
		embedder = &fakeEmbedder{}
	}
	return NewDocumentService(newTestLogger(t), store, embedder)
}

func TestIngestWritesDocuments(t *testing.T) {
	store := newMemStore()
	svc := newDocumentService(t, store, nil)

	result, err := svc.Ingest(context.Background(), []DocumentSpec{
		{
			DocumentID:     "doc-1",
			Content:        "Order granting motion to dismiss.",
			DocumentType:   hierarchy.TypeSourceDocument,
			WorkflowID:     "wf-1",
			HierarchyLevel: 0,
		},
		{
			Content:        "Chunk two text.",
			DocumentType:   hierarchy.TypeChunk,
			WorkflowID:     "wf-1",
			HierarchyLevel: 1,
		},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.DocumentsProcessed != 2 || result.Status != "success" {
		t.Fatalf("result = %+v", result)
	}
	if result.DocumentIDs[0] != "doc-1" {
		t.Fatalf("ids = %v", result.DocumentIDs)
	}
	// The second document had no id; one must have been generated.
	if result.DocumentIDs[1] == "" {
		t.Fatal("missing generated id")
	}
	ws := result.WorkflowSummary["wf-1"]
	if ws == nil || ws.DocumentCount != 2 || ws.HasFinalSummary {
		t.Fatalf("workflow summary = %+v", ws)
	}

	doc, err := store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	node := hierarchy.ParseNode(doc.ID, doc.Source)
	if node.WorkflowID != "wf-1" || node.DocumentType != hierarchy.TypeSourceDocument {
		t.Fatalf("stored node = %+v", node)
	}
	if node.IngestionTimestamp == "" || node.CreatedAt() == "" {
		t.Fatal("timestamps not set")
	}
	if node.ProcessingStatus() != hierarchy.StatusReady {
		t.Fatalf("processing_status = %q", node.ProcessingStatus())
	}
	if _, ok := doc.Source["embedding"]; !ok {
		t.Fatal("embedding missing from stored document")
	}
}

func TestIngestEmptyBatch(t *testing.T) {
	svc := newDocumentService(t, newMemStore(), nil)
	_, err := svc.Ingest(context.Background(), nil)
	assertAPIError(t, err, http.StatusBadRequest, CodeValidation)
}

func TestIngestInvalidSummaryType(t *testing.T) {
	svc := newDocumentService(t, newMemStore(), nil)
	_, err := svc.Ingest(context.Background(), []DocumentSpec{
		{Content: "x", SummaryType: "weekly_digest"},
	})
	assertAPIError(t, err, http.StatusBadRequest, CodeValidation)
}

func TestIngestRejectsTwoFinalSummariesInBatch(t *testing.T) {
	store := newMemStore()
	svc := newDocumentService(t, store, nil)

	_, err := svc.Ingest(context.Background(), []DocumentSpec{
		{Content: "summary one", WorkflowID: "wf-1", IsFinalSummary: true},
		{Content: "summary two", WorkflowID: "wf-1", IsFinalSummary: true},
	})
	assertAPIError(t, err, http.StatusBadRequest, CodeValidation)

	// Nothing may have been written.
	if n, _ := store.Count(context.Background(), nil); n != 0 {
		t.Fatalf("documents written = %d, want 0", n)
	}
}

func TestIngestRejectsExistingFinalSummary(t *testing.T) {
	store := newMemStore()
	svc := newDocumentService(t, store, nil)

	if _, err := svc.Ingest(context.Background(), []DocumentSpec{
		{Content: "the final summary", WorkflowID: "wf-1", IsFinalSummary: true},
	}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	_, err := svc.Ingest(context.Background(), []DocumentSpec{
		{Content: "unrelated chunk", WorkflowID: "wf-1", DocumentType: hierarchy.TypeChunk},
		{Content: "another final summary", WorkflowID: "wf-1", IsFinalSummary: true},
	})
	assertAPIError(t, err, http.StatusBadRequest, CodeValidation)

	// Whole batch refused, the chunk included.
	if n, _ := store.Count(context.Background(), nil); n != 1 {
		t.Fatalf("documents stored = %d, want 1", n)
	}
}

func TestIngestFinalSummaryNormalized(t *testing.T) {
	store := newMemStore()
	svc := newDocumentService(t, store, nil)

	result, err := svc.Ingest(context.Background(), []DocumentSpec{
		{Content: "final", WorkflowID: "wf-1", IsFinalSummary: true, DocumentType: hierarchy.TypeChunk},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	doc, _ := store.Get(context.Background(), result.DocumentIDs[0])
	node := hierarchy.ParseNode(doc.ID, doc.Source)
	if node.DocumentType != hierarchy.TypeFinalSummary || node.SummaryType != hierarchy.TypeFinalSummary {
		t.Fatalf("types = %q %q", node.DocumentType, node.SummaryType)
	}
}

func TestIngestEmbeddingFailureIsWarning(t *testing.T) {
	store := newMemStore()
	embedder := &fakeEmbedder{err: fmt.Errorf("model not loaded")}
	svc := newDocumentService(t, store, embedder)

	result, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "doc-1", Content: "text"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.DocumentsProcessed != 1 || result.Status != "success" {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v", result.Warnings)
	}
	doc, _ := store.Get(context.Background(), "doc-1")
	if _, ok := doc.Source["embedding"]; ok {
		t.Fatal("embedding should be absent")
	}
}

func TestIngestRequireEmbeddingFailureIsError(t *testing.T) {
	store := newMemStore()
	embedder := &fakeEmbedder{err: fmt.Errorf("model not loaded")}
	svc := newDocumentService(t, store, embedder)

	result, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "doc-1", Content: "text", RequireEmbedding: true},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.DocumentsProcessed != 0 || result.Status != "partial" || len(result.Errors) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if _, err := store.Get(context.Background(), "doc-1"); !elastic.IsNotFound(err) {
		t.Fatal("document should not have been written")
	}
}

func TestIngestSkipsEmbeddingWhenDisabled(t *testing.T) {
	store := newMemStore()
	embedder := &fakeEmbedder{}
	svc := newDocumentService(t, store, embedder)

	off := false
	if _, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "doc-1", Content: "text", GenerateEmbedding: &off},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(embedder.inputs) != 0 {
		t.Fatalf("embedder called with %v", embedder.inputs)
	}
}

func TestIngestEmbedsLongerText(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := newDocumentService(t, newMemStore(), embedder)

	longSummary := strings.Repeat("s", 40)
	if _, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "doc-1", Content: "short", Summary: longSummary},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if embedder.lastInput(t) != longSummary {
		t.Fatal("should embed the longer of content and summary")
	}
}

func TestIngestStoreUnavailableAbortsBatch(t *testing.T) {
	store := &fakeStore{
		PutFn: func(ctx context.Context, id string, doc map[string]any, opts *elastic.WriteOptions) error {
			return unavailableStoreErr()
		},
	}
	svc := newDocumentService(t, store, nil)
	_, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "doc-1", Content: "text"},
	})
	assertAPIError(t, err, http.StatusServiceUnavailable, CodeDependencyUnavailable)
}

func TestIngestLinksParent(t *testing.T) {
	store := newMemStore()
	svc := newDocumentService(t, store, nil)

	if _, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "parent", Content: "parent doc", WorkflowID: "wf-1", HierarchyLevel: 1},
	}); err != nil {
		t.Fatalf("ingest parent: %v", err)
	}
	if _, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "child", Content: "child doc", WorkflowID: "wf-1", ParentID: "parent"},
	}); err != nil {
		t.Fatalf("ingest child: %v", err)
	}

	doc, _ := store.Get(context.Background(), "parent")
	parent := hierarchy.ParseNode(doc.ID, doc.Source)
	if len(parent.ChildrenIDs) != 1 || parent.ChildrenIDs[0] != "child" {
		t.Fatalf("parent children = %v", parent.ChildrenIDs)
	}
	meta := doc.Source["metadata"].(map[string]any)
	tree := meta["tree_metadata"].(map[string]any)
	if tree["has_children"] != true || tree["node_type"] != "root" {
		t.Fatalf("tree_metadata = %v", tree)
	}
}

func TestIngestBacklinkIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newDocumentService(t, store, nil)

	if _, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "parent", Content: "parent doc"},
	}); err != nil {
		t.Fatalf("ingest parent: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Ingest(context.Background(), []DocumentSpec{
			{DocumentID: "child", Content: "child doc", ParentID: "parent"},
		}); err != nil {
			t.Fatalf("ingest child (%d): %v", i, err)
		}
	}

	doc, _ := store.Get(context.Background(), "parent")
	parent := hierarchy.ParseNode(doc.ID, doc.Source)
	if len(parent.ChildrenIDs) != 1 {
		t.Fatalf("parent children = %v", parent.ChildrenIDs)
	}
}

func TestIngestBacklinkConflictDoesNotFailBatch(t *testing.T) {
	store := newMemStore()
	seed := newDocumentService(t, store, nil)
	if _, err := seed.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "parent", Content: "parent doc"},
	}); err != nil {
		t.Fatalf("ingest parent: %v", err)
	}

	// Every CAS write now loses.
	store.putHook = func(id string, opts *elastic.WriteOptions) error {
		if opts != nil && opts.IfSeqNo != nil {
			return &elastic.OperationError{Code: elastic.OperationErrorVersionConflict, StatusCode: 409}
		}
		return nil
	}

	svc := newDocumentService(t, store, nil)
	result, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "child", Content: "child doc", ParentID: "parent"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.DocumentsProcessed != 1 || result.Status != "success" {
		t.Fatalf("result = %+v", result)
	}
}

func TestIngestMissingParentIsTolerated(t *testing.T) {
	store := newMemStore()
	svc := newDocumentService(t, store, nil)

	result, err := svc.Ingest(context.Background(), []DocumentSpec{
		{DocumentID: "orphan", Content: "text", ParentID: "never-indexed"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.DocumentsProcessed != 1 {
		t.Fatalf("result = %+v", result)
	}
}
