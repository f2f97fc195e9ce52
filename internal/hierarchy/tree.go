package hierarchy

// TreeNode is one rendered node of a workflow tree.
type TreeNode struct {
	DocumentID       string         `json:"document_id"`
	Content          string         `json:"content,omitempty"`
	ContentPreview   string         `json:"content_preview"`
	ContentLength    int            `json:"content_length"`
	DocumentType     string         `json:"document_type"`
	SummaryType      string         `json:"summary_type,omitempty"`
	HierarchyLevel   int            `json:"hierarchy_level"`
	ProcessingStatus string         `json:"processing_status"`
	Metadata         map[string]any `json:"metadata"`
	Children         []*TreeNode    `json:"children"`
	HasChildren      bool           `json:"has_children"`
	IsExpanded       bool           `json:"is_expanded"`
	ParentID         string         `json:"parent_id,omitempty"`
	IsRoot           bool           `json:"is_root"`
	IsLeaf           bool           `json:"is_leaf"`
}

// Forest is the assembled tree plus the counters the response reports.
type Forest struct {
	Roots         []*TreeNode
	TotalNodes    int
	MaxDepthFound int
	Truncated     bool

	// UnreachableIDs are nodes no root walk visited: members of parent
	// cycles or subtrees cut off by them. Reported so callers can log the
	// broken links instead of looping on them.
	UnreachableIDs []string
}

const (
	DefaultMaxTreeDepth = 10
	MaxTreeDepth        = 20

	// Nodes this close to a root render expanded in tree UIs.
	expandedDepth = 2
)

// BuildForest assembles every node of a workflow into parent-linked
// trees. Child order follows input order, parent links are read from
// each node's own parent_id, and an already-visited child is skipped
// rather than re-expanded, so the walk terminates on any input.
func BuildForest(nodes []Node, maxDepth int, includeContent bool) *Forest {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTreeDepth
	}

	byID := make(map[string]*Node, len(nodes))
	order := make([]string, 0, len(nodes))
	for i := range nodes {
		id := nodes[i].DocumentID
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = &nodes[i]
		order = append(order, id)
	}

	// Adjacency comes from each child's parent pointer, not the parent's
	// stored children_ids: backlinks are best-effort and may lag.
	childOrder := make(map[string][]string, len(byID))
	var rootIDs []string
	for _, id := range order {
		parentID := byID[id].ParentID
		switch {
		case parentID == "":
			rootIDs = append(rootIDs, id)
		case byID[parentID] == nil:
			// Orphan: the parent was never indexed. Promote to root so
			// the subtree still renders.
			rootIDs = append(rootIDs, id)
		default:
			childOrder[parentID] = append(childOrder[parentID], id)
		}
	}

	f := &Forest{TotalNodes: len(order)}
	visited := make(map[string]bool, len(order))

	var build func(id string, depth int) *TreeNode
	build = func(id string, depth int) *TreeNode {
		node := byID[id]
		visited[id] = true
		if depth > f.MaxDepthFound {
			f.MaxDepthFound = depth
		}

		kids := childOrder[id]
		tn := &TreeNode{
			DocumentID:       node.DocumentID,
			ContentPreview:   Preview(node.DisplayText(), PreviewTree),
			ContentLength:    len(node.Content),
			DocumentType:     node.DocumentType,
			SummaryType:      node.SummaryType,
			HierarchyLevel:   node.Level,
			ProcessingStatus: node.ProcessingStatus(),
			Metadata: map[string]any{
				"created_at":       node.CreatedAt(),
				"word_count":       Stats(node.Content).WordCount,
				"is_final_summary": node.IsFinalSummary,
			},
			Children:    []*TreeNode{},
			HasChildren: len(kids) > 0,
			IsExpanded:  depth < expandedDepth,
			ParentID:    node.ParentID,
			IsRoot:      node.ParentID == "",
			IsLeaf:      len(kids) == 0,
		}
		if includeContent {
			tn.Content = node.Content
		}

		if len(kids) > 0 && depth >= maxDepth {
			f.Truncated = true
			return tn
		}
		for _, kid := range kids {
			if visited[kid] {
				continue
			}
			tn.Children = append(tn.Children, build(kid, depth+1))
		}
		return tn
	}

	for _, id := range rootIDs {
		if visited[id] {
			continue
		}
		f.Roots = append(f.Roots, build(id, 0))
	}

	for _, id := range order {
		if !visited[id] {
			f.UnreachableIDs = append(f.UnreachableIDs, id)
		}
	}
	return f
}
