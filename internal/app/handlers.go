package app

import (
	"github.com/Code4me2/data-compose/internal/http/handlers"
)

type Handlers struct {
	Ingest    *handlers.IngestHandler
	Search    *handlers.SearchHandler
	Hierarchy *handlers.HierarchyHandler
	Document  *handlers.DocumentHandler
	Batch     *handlers.BatchHandler
	Workflow  *handlers.WorkflowHandler
	Status    *handlers.StatusHandler
	Stage     *handlers.StageHandler
	Health    *handlers.HealthHandler
}

func wireHandlers(svcs Services) Handlers {
	return Handlers{
		Ingest:    handlers.NewIngestHandler(svcs.Documents),
		Search:    handlers.NewSearchHandler(svcs.Search),
		Hierarchy: handlers.NewHierarchyHandler(svcs.Navigator),
		Document:  handlers.NewDocumentHandler(svcs.Navigator),
		Batch:     handlers.NewBatchHandler(svcs.Navigator),
		Workflow:  handlers.NewWorkflowHandler(svcs.Workflows),
		Status:    handlers.NewStatusHandler(svcs.Status),
		Stage:     handlers.NewStageHandler(svcs.Status),
		Health:    handlers.NewHealthHandler(svcs.Health),
	}
}
