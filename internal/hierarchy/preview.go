package hierarchy

// Preview lengths grow with how much screen space each surface gives a
// single document: breadcrumbs are one line, context panels a paragraph.
const (
	PreviewBreadcrumb = 100
	PreviewTree       = 200
	PreviewContext    = 500
	PreviewBody       = 1000
)

// Preview truncates s to at most limit bytes, appending an ellipsis when
// anything was cut. limit <= 0 returns s unchanged.
func Preview(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
