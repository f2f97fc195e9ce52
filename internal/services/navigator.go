package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Code4me2/data-compose/internal/hierarchy"
	"github.com/Code4me2/data-compose/internal/platform/elastic"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

const (
	defaultContextDepth = 3
	maxContextDepth     = 10

	// Batch fetches run this many store calls in flight at once.
	batchFetchConcurrency = 8

	// Batch main documents ship a larger slice of content than the
	// preview surfaces do.
	batchContentLimit = 5000
)

type HierarchyRequest struct {
	DocumentID      string `json:"document_id"`
	IncludeParents  *bool  `json:"include_parents"`
	IncludeChildren *bool  `json:"include_children"`
	MaxDepth        int    `json:"max_depth"`
}

// DocumentView is the full rendering of one stored document.
type DocumentView struct {
	DocumentID       string         `json:"document_id"`
	Content          string         `json:"content"`
	Summary          string         `json:"summary,omitempty"`
	DocumentType     string         `json:"document_type"`
	HierarchyLevel   int            `json:"hierarchy_level"`
	ParentID         string         `json:"parent_id,omitempty"`
	ChildrenIDs      []string       `json:"children_ids"`
	ProcessingStatus string         `json:"processing_status"`
	Metadata         map[string]any `json:"metadata"`
	WorkflowID       string         `json:"workflow_id,omitempty"`
	IsFinalSummary   bool           `json:"is_final_summary"`
}

// RelatedDocument is the preview rendering used for parents, children,
// and siblings around a target document.
type RelatedDocument struct {
	DocumentID       string `json:"document_id"`
	ContentPreview   string `json:"content_preview"`
	DocumentType     string `json:"document_type"`
	HierarchyLevel   int    `json:"hierarchy_level"`
	ProcessingStatus string `json:"processing_status,omitempty"`
	Position         *int   `json:"position,omitempty"`
}

type HierarchyResponse struct {
	DocumentID   string            `json:"document_id"`
	Document     DocumentView      `json:"document"`
	Parents      []RelatedDocument `json:"parents"`
	Children     []RelatedDocument `json:"children"`
	Siblings     []RelatedDocument `json:"siblings"`
	TotalRelated int               `json:"total_related"`
}

type DocumentContextRequest struct {
	DocumentID         string
	IncludeFullContent bool
	IncludeSiblings    bool
}

type BreadcrumbItem struct {
	DocumentID     string `json:"document_id"`
	ContentPreview string `json:"content_preview"`
	DocumentType   string `json:"document_type"`
	HierarchyLevel int    `json:"hierarchy_level"`
}

type SiblingDocument struct {
	DocumentID       string `json:"document_id"`
	ContentPreview   string `json:"content_preview"`
	DocumentType     string `json:"document_type"`
	ProcessingStatus string `json:"processing_status"`
	Position         int    `json:"position"`
}

type DocumentContextResponse struct {
	DocumentID       string            `json:"document_id"`
	Content          string            `json:"content,omitempty"`
	ContentPreview   string            `json:"content_preview"`
	ContentLength    int               `json:"content_length"`
	DocumentType     string            `json:"document_type"`
	SummaryType      string            `json:"summary_type,omitempty"`
	ProcessingStatus string            `json:"processing_status"`
	Metadata         map[string]any    `json:"metadata"`
	HierarchyLevel   int               `json:"hierarchy_level"`
	ParentID         string            `json:"parent_id,omitempty"`
	ChildrenIDs      []string          `json:"children_ids"`
	HasParent        bool              `json:"has_parent"`
	HasChildren      bool              `json:"has_children"`
	IsRoot           bool              `json:"is_root"`
	IsLeaf           bool              `json:"is_leaf"`
	BreadcrumbPath   []BreadcrumbItem  `json:"breadcrumb_path"`
	Siblings         []SiblingDocument `json:"siblings,omitempty"`
	SiblingPosition  *int              `json:"sibling_position,omitempty"`
	TotalSiblings    *int              `json:"total_siblings,omitempty"`
	WorkflowID       string            `json:"workflow_id,omitempty"`
	IsFinalSummary   bool              `json:"is_final_summary"`
	QueryTimeMS      int64             `json:"query_time_ms"`
}

type BatchHierarchyRequest struct {
	DocumentIDs    []string `json:"document_ids"`
	IncludeRelated *bool    `json:"include_related"`
}

type BatchDocument struct {
	Found            bool     `json:"found"`
	DocumentID       string   `json:"document_id"`
	Content          string   `json:"content,omitempty"`
	ContentLength    int      `json:"content_length,omitempty"`
	DocumentType     string   `json:"document_type,omitempty"`
	HierarchyLevel   int      `json:"hierarchy_level,omitempty"`
	ParentID         string   `json:"parent_id,omitempty"`
	ChildrenIDs      []string `json:"children_ids,omitempty"`
	ProcessingStatus string   `json:"processing_status,omitempty"`
	WorkflowID       string   `json:"workflow_id,omitempty"`
}

type BatchHierarchyResponse struct {
	Documents      map[string]*BatchDocument    `json:"documents"`
	Related        map[string][]RelatedDocument `json:"related,omitempty"`
	TotalRequested int                          `json:"total_requested"`
	TotalFound     int                          `json:"total_found"`
	Truncated      bool                         `json:"truncated"`
}

// NavigatorService answers tree-walking reads: context around one
// document, breadcrumb trails, and bulk neighborhood fetches.
type NavigatorService interface {
	GetHierarchy(ctx context.Context, req HierarchyRequest) (*HierarchyResponse, error)
	GetDocumentWithContext(ctx context.Context, req DocumentContextRequest) (*DocumentContextResponse, error)
	GetBatchHierarchy(ctx context.Context, req BatchHierarchyRequest) (*BatchHierarchyResponse, error)
}

type navigatorService struct {
	log   *logger.Logger
	store elastic.Store
}

func NewNavigatorService(log *logger.Logger, store elastic.Store) NavigatorService {
	return &navigatorService{
		log:   log.With("service", "NavigatorService"),
		store: store,
	}
}

func (s *navigatorService) GetHierarchy(ctx context.Context, req HierarchyRequest) (*HierarchyResponse, error) {
	if req.DocumentID == "" {
		return nil, validationError(fmt.Errorf("document_id is required"))
	}
	maxDepth := req.MaxDepth
	if maxDepth == 0 {
		maxDepth = defaultContextDepth
	}
	if maxDepth < 1 || maxDepth > maxContextDepth {
		return nil, validationError(fmt.Errorf(
			"max_depth must be between 1 and %d, got %d", maxContextDepth, req.MaxDepth))
	}

	doc, err := s.store.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, storeError(err)
	}
	node := hierarchy.ParseNode(doc.ID, doc.Source)

	resp := &HierarchyResponse{
		DocumentID: node.DocumentID,
		Document:   documentView(node),
		Parents:    []RelatedDocument{},
		Children:   []RelatedDocument{},
		Siblings:   []RelatedDocument{},
	}

	if boolOr(req.IncludeParents, true) {
		resp.Parents = s.ancestors(ctx, node, maxDepth)
	}
	if boolOr(req.IncludeChildren, true) {
		for _, childID := range node.ChildrenIDs {
			child, err := s.fetchNode(ctx, childID)
			if err != nil {
				s.log.Warn("Child fetch failed", "document_id", node.DocumentID, "child_id", childID, "error", err)
				continue
			}
			resp.Children = append(resp.Children, relatedDocument(child, nil))
		}
	}
	if node.ParentID != "" {
		siblings, _, _ := s.siblings(ctx, node)
		for _, sib := range siblings {
			pos := sib.Position
			resp.Siblings = append(resp.Siblings, RelatedDocument{
				DocumentID:       sib.DocumentID,
				ContentPreview:   sib.ContentPreview,
				DocumentType:     sib.DocumentType,
				ProcessingStatus: sib.ProcessingStatus,
				Position:         &pos,
			})
		}
	}

	resp.TotalRelated = len(resp.Parents) + len(resp.Children) + len(resp.Siblings)
	return resp, nil
}

// ancestors climbs the parent chain up to maxDepth hops. A repeated id
// means a corrupted link cycle; the climb stops there and logs it.
func (s *navigatorService) ancestors(ctx context.Context, node hierarchy.Node, maxDepth int) []RelatedDocument {
	out := []RelatedDocument{}
	visited := map[string]bool{node.DocumentID: true}
	current := node
	for hop := 0; hop < maxDepth && current.ParentID != ""; hop++ {
		if visited[current.ParentID] {
			s.log.Warn("Parent chain cycle detected",
				"document_id", node.DocumentID,
				"cycle_at", current.ParentID,
			)
			break
		}
		parent, err := s.fetchNode(ctx, current.ParentID)
		if err != nil {
			s.log.Warn("Ancestor fetch failed",
				"document_id", node.DocumentID,
				"parent_id", current.ParentID,
				"error", err,
			)
			break
		}
		visited[parent.DocumentID] = true
		// Parents carry a longer slice of text than children and
		// siblings do; callers climb toward summaries, which are the
		// text being reviewed.
		rd := relatedDocument(parent, nil)
		rd.ContentPreview = hierarchy.Preview(parent.DisplayText(), hierarchy.PreviewBody)
		out = append(out, rd)
		current = parent
	}
	return out
}

func (s *navigatorService) GetDocumentWithContext(ctx context.Context, req DocumentContextRequest) (*DocumentContextResponse, error) {
	if req.DocumentID == "" {
		return nil, validationError(fmt.Errorf("document_id is required"))
	}
	start := time.Now()

	doc, err := s.store.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, storeError(err)
	}
	node := hierarchy.ParseNode(doc.ID, doc.Source)

	resp := &DocumentContextResponse{
		DocumentID:       node.DocumentID,
		ContentPreview:   hierarchy.Preview(node.Content, hierarchy.PreviewContext),
		ContentLength:    len(node.Content),
		DocumentType:     node.DocumentType,
		SummaryType:      node.SummaryType,
		ProcessingStatus: node.ProcessingStatus(),
		Metadata:         node.Metadata,
		HierarchyLevel:   node.Level,
		ParentID:         node.ParentID,
		ChildrenIDs:      childrenOrEmpty(node),
		HasParent:        node.ParentID != "",
		HasChildren:      node.HasChildren(),
		IsRoot:           node.IsRoot(),
		IsLeaf:           !node.HasChildren(),
		WorkflowID:       node.WorkflowID,
		IsFinalSummary:   node.IsFinalSummary,
	}
	if req.IncludeFullContent {
		resp.Content = node.Content
	}

	resp.BreadcrumbPath = s.breadcrumbs(ctx, node)

	if req.IncludeSiblings && node.ParentID != "" {
		siblings, position, total := s.siblings(ctx, node)
		resp.Siblings = siblings
		resp.SiblingPosition = position
		resp.TotalSiblings = &total
	}

	resp.QueryTimeMS = time.Since(start).Milliseconds()
	return resp, nil
}

// breadcrumbs walks from the document up to its root and returns the
// path root-first, the document itself included last.
func (s *navigatorService) breadcrumbs(ctx context.Context, node hierarchy.Node) []BreadcrumbItem {
	path := []BreadcrumbItem{breadcrumb(node)}
	visited := map[string]bool{node.DocumentID: true}
	current := node
	for current.ParentID != "" {
		if visited[current.ParentID] {
			s.log.Warn("Breadcrumb cycle detected",
				"document_id", node.DocumentID,
				"cycle_at", current.ParentID,
			)
			break
		}
		parent, err := s.fetchNode(ctx, current.ParentID)
		if err != nil {
			s.log.Warn("Breadcrumb fetch failed",
				"document_id", node.DocumentID,
				"parent_id", current.ParentID,
				"error", err,
			)
			break
		}
		visited[parent.DocumentID] = true
		path = append(path, breadcrumb(parent))
		current = parent
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// siblings lists the other children of the document's parent in the
// parent's stored order, along with the document's own position.
func (s *navigatorService) siblings(ctx context.Context, node hierarchy.Node) ([]SiblingDocument, *int, int) {
	parent, err := s.fetchNode(ctx, node.ParentID)
	if err != nil {
		s.log.Warn("Sibling lookup failed: parent fetch failed",
			"document_id", node.DocumentID,
			"parent_id", node.ParentID,
			"error", err,
		)
		return []SiblingDocument{}, nil, 0
	}

	out := []SiblingDocument{}
	var position *int
	for i, childID := range parent.ChildrenIDs {
		if childID == node.DocumentID {
			pos := i
			position = &pos
			continue
		}
		sibling, err := s.fetchNode(ctx, childID)
		if err != nil {
			s.log.Warn("Sibling fetch failed",
				"document_id", node.DocumentID,
				"sibling_id", childID,
				"error", err,
			)
			continue
		}
		out = append(out, SiblingDocument{
			DocumentID:       sibling.DocumentID,
			ContentPreview:   hierarchy.Preview(sibling.DisplayText(), hierarchy.PreviewTree),
			DocumentType:     sibling.DocumentType,
			ProcessingStatus: sibling.ProcessingStatus(),
			Position:         i,
		})
	}
	total := len(parent.ChildrenIDs) - 1
	if total < 0 {
		total = 0
	}
	return out, position, total
}

func (s *navigatorService) GetBatchHierarchy(ctx context.Context, req BatchHierarchyRequest) (*BatchHierarchyResponse, error) {
	if len(req.DocumentIDs) == 0 {
		return nil, validationError(fmt.Errorf("document_ids is required"))
	}
	if len(req.DocumentIDs) > maxBatchDocuments {
		return nil, exhaustedError(fmt.Errorf(
			"batch size too large: %d documents (max %d)", len(req.DocumentIDs), maxBatchDocuments))
	}
	if err := checkMemoryPressure(s.log); err != nil {
		return nil, err
	}

	resp := &BatchHierarchyResponse{
		Documents:      make(map[string]*BatchDocument, len(req.DocumentIDs)),
		TotalRequested: len(req.DocumentIDs),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchFetchConcurrency)
	for _, id := range req.DocumentIDs {
		g.Go(func() error {
			doc, err := s.store.Get(gctx, id)
			if err != nil {
				if elastic.IsNotFound(err) {
					mu.Lock()
					resp.Documents[id] = &BatchDocument{Found: false, DocumentID: id}
					mu.Unlock()
					return nil
				}
				return err
			}
			node := hierarchy.ParseNode(doc.ID, doc.Source)
			mu.Lock()
			resp.Documents[id] = batchDocument(node)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeError(err)
	}

	contentBudget := maxBatchContentBytes
	foundIDs := make([]string, 0, len(resp.Documents))
	for _, id := range req.DocumentIDs {
		bd := resp.Documents[id]
		if bd == nil || !bd.Found {
			continue
		}
		resp.TotalFound++
		foundIDs = append(foundIDs, id)
		contentBudget -= bd.ContentLength
	}

	if boolOr(req.IncludeRelated, true) && len(foundIDs) > 0 {
		if contentBudget <= 0 {
			resp.Truncated = true
			return resp, nil
		}
		related, truncated, err := s.fetchRelated(ctx, foundIDs, contentBudget)
		if err != nil {
			return nil, err
		}
		resp.Related = related
		resp.Truncated = truncated
	}
	return resp, nil
}

// fetchRelated pulls every document whose parent is one of ids with a
// single terms query, grouped by parent. Accumulation stops once the
// shared content budget runs out.
func (s *navigatorService) fetchRelated(ctx context.Context, ids []string, budget int) (map[string][]RelatedDocument, bool, error) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	hits, err := s.store.SearchAll(ctx, []map[string]any{
		elastic.TermsFilter("hierarchy.parent_id", sorted),
	}, 1000)
	if err != nil {
		return nil, false, storeError(err)
	}

	out := map[string][]RelatedDocument{}
	truncated := false
	for _, hit := range hits {
		node := hierarchy.ParseNode(hit.ID, hit.Source)
		if node.ParentID == "" {
			continue
		}
		budget -= len(node.Content)
		if budget <= 0 {
			truncated = true
			break
		}
		out[node.ParentID] = append(out[node.ParentID], relatedDocument(node, nil))
	}
	return out, truncated, nil
}

func (s *navigatorService) fetchNode(ctx context.Context, id string) (hierarchy.Node, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return hierarchy.Node{}, err
	}
	return hierarchy.ParseNode(doc.ID, doc.Source), nil
}

func documentView(node hierarchy.Node) DocumentView {
	return DocumentView{
		DocumentID:       node.DocumentID,
		Content:          node.Content,
		Summary:          node.Summary,
		DocumentType:     node.DocumentType,
		HierarchyLevel:   node.Level,
		ParentID:         node.ParentID,
		ChildrenIDs:      childrenOrEmpty(node),
		ProcessingStatus: node.ProcessingStatus(),
		Metadata:         node.Metadata,
		WorkflowID:       node.WorkflowID,
		IsFinalSummary:   node.IsFinalSummary,
	}
}

func relatedDocument(node hierarchy.Node, position *int) RelatedDocument {
	return RelatedDocument{
		DocumentID:       node.DocumentID,
		ContentPreview:   hierarchy.Preview(node.DisplayText(), hierarchy.PreviewContext),
		DocumentType:     node.DocumentType,
		HierarchyLevel:   node.Level,
		ProcessingStatus: node.ProcessingStatus(),
		Position:         position,
	}
}

func batchDocument(node hierarchy.Node) *BatchDocument {
	return &BatchDocument{
		Found:            true,
		DocumentID:       node.DocumentID,
		Content:          hierarchy.Preview(node.Content, batchContentLimit),
		ContentLength:    len(node.Content),
		DocumentType:     node.DocumentType,
		HierarchyLevel:   node.Level,
		ParentID:         node.ParentID,
		ChildrenIDs:      childrenOrEmpty(node),
		ProcessingStatus: node.ProcessingStatus(),
		WorkflowID:       node.WorkflowID,
	}
}

func childrenOrEmpty(node hierarchy.Node) []string {
	if node.ChildrenIDs == nil {
		return []string{}
	}
	return node.ChildrenIDs
}

func breadcrumb(node hierarchy.Node) BreadcrumbItem {
	return BreadcrumbItem{
		DocumentID:     node.DocumentID,
		ContentPreview: hierarchy.Preview(node.DisplayText(), hierarchy.PreviewBreadcrumb),
		DocumentType:   node.DocumentType,
		HierarchyLevel: node.Level,
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
