package hierarchy

import (
	"strings"
	"testing"
)

func TestSourceRoundTrip(t *testing.T) {
	n := Node{
		DocumentID:         "doc-1",
		Content:            "The court held that the motion was untimely.",
		Summary:            "Motion denied as untimely.",
		DocumentType:       TypeChunkSummary,
		SummaryType:        TypeChunkSummary,
		Level:              1,
		ParentID:           "doc-0",
		ChildrenIDs:        []string{"doc-2", "doc-3"},
		WorkflowID:         "wf-1",
		Embedding:          []float32{0.1, 0.2},
		Metadata:           map[string]any{"source": "pacer"},
		IngestionTimestamp: "2026-01-05T10:00:00Z",
	}

	src := n.Source()
	parsed := ParseNode("doc-1", src)

	if parsed.DocumentID != "doc-1" || parsed.Content != n.Content || parsed.Summary != n.Summary {
		t.Fatalf("parsed = %+v", parsed)
	}
	if parsed.DocumentType != TypeChunkSummary || parsed.SummaryType != TypeChunkSummary {
		t.Fatalf("types = %q %q", parsed.DocumentType, parsed.SummaryType)
	}
	if parsed.Level != 1 || parsed.ParentID != "doc-0" {
		t.Fatalf("hierarchy = level %d parent %q", parsed.Level, parsed.ParentID)
	}
	if len(parsed.ChildrenIDs) != 2 || parsed.ChildrenIDs[0] != "doc-2" {
		t.Fatalf("children = %v", parsed.ChildrenIDs)
	}
	if parsed.WorkflowID != "wf-1" || parsed.IsFinalSummary {
		t.Fatalf("workflow = %q final=%v", parsed.WorkflowID, parsed.IsFinalSummary)
	}
	if parsed.Metadata["source"] != "pacer" {
		t.Fatalf("metadata = %v", parsed.Metadata)
	}
}

func TestSourceEnrichesMetadata(t *testing.T) {
	n := Node{
		DocumentID: "doc-1",
		Content:    "one two three\n\nfour five",
		ParentID:   "doc-0",
	}
	src := n.Source()

	meta, ok := src["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata missing: %v", src)
	}
	if meta["processing_status"] != StatusReady {
		t.Fatalf("processing_status = %v", meta["processing_status"])
	}
	stats, ok := meta["content_stats"].(map[string]any)
	if !ok || stats["word_count"] != 5 || stats["paragraph_count"] != 2 {
		t.Fatalf("content_stats = %v", meta["content_stats"])
	}
	tree, ok := meta["tree_metadata"].(map[string]any)
	if !ok || tree["node_type"] != "leaf" || tree["has_parent"] != true {
		t.Fatalf("tree_metadata = %v", meta["tree_metadata"])
	}
}

func TestSourceDoesNotAliasMetadata(t *testing.T) {
	shared := map[string]any{"case": "x"}
	n := Node{DocumentID: "doc-1", Metadata: shared}
	src := n.Source()

	meta := src["metadata"].(map[string]any)
	meta["case"] = "mutated"
	if shared["case"] != "x" {
		t.Fatal("Source aliased the caller's metadata map")
	}
}

func TestSourceKeepsExplicitProcessingStatus(t *testing.T) {
	n := Node{
		DocumentID: "doc-1",
		Metadata:   map[string]any{"processing_status": StatusCompleted},
	}
	meta := n.Source()["metadata"].(map[string]any)
	if meta["processing_status"] != StatusCompleted {
		t.Fatalf("processing_status = %v", meta["processing_status"])
	}
}

func TestNormalizeFinalSummary(t *testing.T) {
	n := Node{DocumentID: "doc-1", IsFinalSummary: true, DocumentType: TypeChunk}
	n.Normalize()
	if n.DocumentType != TypeFinalSummary || n.SummaryType != TypeFinalSummary {
		t.Fatalf("normalized = %q %q", n.DocumentType, n.SummaryType)
	}
}

func TestNormalizeDefaultsDocumentType(t *testing.T) {
	n := Node{DocumentID: "doc-1"}
	n.Normalize()
	if n.DocumentType != TypeSourceDocument {
		t.Fatalf("document_type = %q", n.DocumentType)
	}
}

func TestValidate(t *testing.T) {
	if err := (Node{Level: -1}).Validate(); err == nil {
		t.Fatal("negative level accepted")
	}
	err := (Node{SummaryType: "weekly_digest"}).Validate()
	if err == nil || !strings.Contains(err.Error(), "summary_type") {
		t.Fatalf("err = %v", err)
	}
	if err := (Node{Level: 2, SummaryType: TypeIntermediateSummary}).Validate(); err != nil {
		t.Fatalf("valid node rejected: %v", err)
	}
}

func TestNodeType(t *testing.T) {
	cases := []struct {
		parent   string
		children []string
		want     string
	}{
		{"", nil, "root"},
		{"", []string{"c"}, "root"},
		{"p", []string{"c"}, "branch"},
		{"p", nil, "leaf"},
	}
	for _, tc := range cases {
		n := Node{ParentID: tc.parent, ChildrenIDs: tc.children}
		if got := n.NodeType(); got != tc.want {
			t.Fatalf("NodeType(parent=%q children=%v) = %q, want %q", tc.parent, tc.children, got, tc.want)
		}
	}
}

func TestDisplayTextPrefersSummary(t *testing.T) {
	n := Node{Content: "full text", Summary: "short"}
	if n.DisplayText() != "short" {
		t.Fatalf("DisplayText = %q", n.DisplayText())
	}
	n.Summary = ""
	if n.DisplayText() != "full text" {
		t.Fatalf("DisplayText = %q", n.DisplayText())
	}
}

func TestParseNodeToleratesPartialSource(t *testing.T) {
	parsed := ParseNode("doc-9", map[string]any{
		"content": "body",
		"hierarchy": map[string]any{
			"level":        float64(3),
			"children_ids": []any{"a", 7, "b"},
		},
	})
	if parsed.DocumentID != "doc-9" || parsed.Content != "body" {
		t.Fatalf("parsed = %+v", parsed)
	}
	if parsed.DocumentType != TypeUnknown {
		t.Fatalf("document_type = %q", parsed.DocumentType)
	}
	if parsed.Level != 3 {
		t.Fatalf("level = %d", parsed.Level)
	}
	if len(parsed.ChildrenIDs) != 2 || parsed.ChildrenIDs[1] != "b" {
		t.Fatalf("children = %v", parsed.ChildrenIDs)
	}
	if parsed.ProcessingStatus() != "unknown" {
		t.Fatalf("processing_status = %q", parsed.ProcessingStatus())
	}
}

func TestStatsEmptyContent(t *testing.T) {
	s := Stats("")
	if s.CharCount != 0 || s.WordCount != 0 || s.ParagraphCount != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short", 100); got != "short" {
		t.Fatalf("Preview = %q", got)
	}
	long := strings.Repeat("a", 150)
	got := Preview(long, 100)
	if len(got) != 103 || !strings.HasSuffix(got, "...") {
		t.Fatalf("Preview len = %d suffix = %q", len(got), got[len(got)-3:])
	}
	if got := Preview(long, 0); got != long {
		t.Fatalf("limit 0 should not truncate")
	}
}
