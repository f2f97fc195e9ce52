package hierarchy

import (
	"fmt"
	"sort"
	"strings"
)

// Document types in ascending summarization order.
const (
	TypeSourceDocument      = "source_document"
	TypeChunk               = "chunk"
	TypeChunkSummary        = "chunk_summary"
	TypeIntermediateSummary = "intermediate_summary"
	TypeFinalSummary        = "final_summary"
	TypeUnknown             = "unknown"
)

// Processing statuses a node moves through during a summarization run.
// Uploaded is set by the upstream intake pipeline before chunking; the
// update endpoint never writes it, stage queries only read it.
const (
	StatusUploaded      = "uploaded"
	StatusReady         = "ready"
	StatusProcessing    = "processing"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
	StatusFinalComplete = "final_complete"
)

var validStatuses = map[string]bool{
	StatusReady:         true,
	StatusProcessing:    true,
	StatusCompleted:     true,
	StatusFailed:        true,
	StatusFinalComplete: true,
}

var validSummaryTypes = map[string]bool{
	TypeChunkSummary:        true,
	TypeIntermediateSummary: true,
	TypeFinalSummary:        true,
}

func ValidProcessingStatus(s string) bool {
	return validStatuses[s]
}

func ValidStatuses() []string {
	out := make([]string, 0, len(validStatuses))
	for s := range validStatuses {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func ValidSummaryType(s string) bool {
	return validSummaryTypes[s]
}

// Node is one document in a summarization hierarchy: raw source at the
// bottom, the single final summary at the top, with parent/child links
// connecting the levels between.
type Node struct {
	DocumentID         string
	Content            string
	Summary            string
	DocumentType       string
	SummaryType        string
	Level              int
	ParentID           string
	ChildrenIDs        []string
	WorkflowID         string
	IsFinalSummary     bool
	Embedding          []float32
	Metadata           map[string]any
	IngestionTimestamp string
}

func (n Node) IsRoot() bool {
	return n.ParentID == ""
}

func (n Node) HasChildren() bool {
	return len(n.ChildrenIDs) > 0
}

// NodeType classifies position in the tree: root has no parent, leaf has
// no children, branch has both.
func (n Node) NodeType() string {
	switch {
	case n.ParentID == "":
		return "root"
	case len(n.ChildrenIDs) > 0:
		return "branch"
	default:
		return "leaf"
	}
}

func (n Node) ProcessingStatus() string {
	if n.Metadata != nil {
		if s, ok := n.Metadata["processing_status"].(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

func (n Node) CreatedAt() string {
	if n.Metadata != nil {
		if s, ok := n.Metadata["created_at"].(string); ok {
			return s
		}
	}
	return ""
}

// DisplayText is the text shown in search results and tree views: the
// summary when one exists, otherwise the raw content.
func (n Node) DisplayText() string {
	if n.Summary != "" {
		return n.Summary
	}
	return n.Content
}

// Normalize repairs derivable fields: a final summary always carries the
// final_summary type markers.
func (n *Node) Normalize() {
	if n.DocumentType == "" {
		n.DocumentType = TypeSourceDocument
	}
	if n.IsFinalSummary {
		n.DocumentType = TypeFinalSummary
		n.SummaryType = TypeFinalSummary
	}
}

func (n Node) Validate() error {
	if n.Level < 0 {
		return fmt.Errorf("hierarchy_level must be >= 0, got %d", n.Level)
	}
	if n.SummaryType != "" && !ValidSummaryType(n.SummaryType) {
		return fmt.Errorf(
			"invalid summary_type %q; valid: %s, %s, %s",
			n.SummaryType, TypeChunkSummary, TypeIntermediateSummary, TypeFinalSummary,
		)
	}
	return nil
}

// ContentStats are per-document size counters kept in metadata.
type ContentStats struct {
	CharCount      int `json:"char_count"`
	WordCount      int `json:"word_count"`
	ParagraphCount int `json:"paragraph_count"`
}

func Stats(content string) ContentStats {
	return ContentStats{
		CharCount:      len(content),
		WordCount:      len(strings.Fields(content)),
		ParagraphCount: strings.Count(content, "\n\n") + 1,
	}
}

// Source renders the node as the stored document shape. Metadata is
// copied and enriched with content stats and tree position so callers
// can mutate the node afterwards without aliasing the stored map.
func (n Node) Source() map[string]any {
	meta := make(map[string]any, len(n.Metadata)+3)
	for k, v := range n.Metadata {
		meta[k] = v
	}
	if _, ok := meta["processing_status"]; !ok {
		meta["processing_status"] = StatusReady
	}
	stats := Stats(n.Content)
	meta["content_stats"] = map[string]any{
		"char_count":      stats.CharCount,
		"word_count":      stats.WordCount,
		"paragraph_count": stats.ParagraphCount,
	}
	meta["tree_metadata"] = map[string]any{
		"has_parent":   n.ParentID != "",
		"has_children": len(n.ChildrenIDs) > 0,
		"node_type":    n.NodeType(),
	}

	children := n.ChildrenIDs
	if children == nil {
		children = []string{}
	}

	var parentID any
	if n.ParentID != "" {
		parentID = n.ParentID
	}

	src := map[string]any{
		"document_id":   n.DocumentID,
		"content":       n.Content,
		"summary":       n.Summary,
		"document_type": n.DocumentType,
		"hierarchy": map[string]any{
			"level":        n.Level,
			"parent_id":    parentID,
			"children_ids": children,
			"is_root":      n.ParentID == "",
		},
		"workflow": map[string]any{
			"workflow_id":      n.WorkflowID,
			"is_final_summary": n.IsFinalSummary,
			"summary_type":     n.SummaryType,
		},
		"metadata":            meta,
		"ingestion_timestamp": n.IngestionTimestamp,
	}
	if n.Embedding != nil {
		src["embedding"] = n.Embedding
	}
	return src
}

// ParseNode reads a stored document back into a Node. Missing or
// malformed fields degrade to zero values; stored documents may predate
// the current mapping.
func ParseNode(id string, src map[string]any) Node {
	n := Node{
		DocumentID:         id,
		Content:            mapStr(src, "content"),
		Summary:            mapStr(src, "summary"),
		DocumentType:       mapStr(src, "document_type"),
		IngestionTimestamp: mapStr(src, "ingestion_timestamp"),
	}
	if n.DocumentType == "" {
		n.DocumentType = TypeUnknown
	}
	if docID := mapStr(src, "document_id"); docID != "" {
		n.DocumentID = docID
	}

	if hier, ok := src["hierarchy"].(map[string]any); ok {
		n.Level = mapInt(hier, "level")
		n.ParentID = mapStr(hier, "parent_id")
		n.ChildrenIDs = mapStrSlice(hier, "children_ids")
	}
	if wf, ok := src["workflow"].(map[string]any); ok {
		n.WorkflowID = mapStr(wf, "workflow_id")
		n.IsFinalSummary = mapBool(wf, "is_final_summary")
		n.SummaryType = mapStr(wf, "summary_type")
	}
	if meta, ok := src["metadata"].(map[string]any); ok {
		n.Metadata = meta
	}
	return n
}

func mapStr(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func mapInt(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func mapBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	if b, ok := m[key].(bool); ok {
		return b
	}
	return false
}

func mapStrSlice(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
