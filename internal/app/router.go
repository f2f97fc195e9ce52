package app

import (
	"github.com/gin-gonic/gin"

	apphttp "github.com/Code4me2/data-compose/internal/http"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, h Handlers) *gin.Engine {
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:         log,
		OtelEnabled: cfg.OtelEnabled,

		IngestHandler:    h.Ingest,
		SearchHandler:    h.Search,
		HierarchyHandler: h.Hierarchy,
		DocumentHandler:  h.Document,
		BatchHandler:     h.Batch,
		WorkflowHandler:  h.Workflow,
		StatusHandler:    h.Status,
		StageHandler:     h.Stage,
		HealthHandler:    h.Health,
	})
}
