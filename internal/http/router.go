package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Code4me2/data-compose/internal/http/handlers"
	"github.com/Code4me2/data-compose/internal/http/middleware"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	OtelEnabled bool

	IngestHandler    *handlers.IngestHandler
	SearchHandler    *handlers.SearchHandler
	HierarchyHandler *handlers.HierarchyHandler
	DocumentHandler  *handlers.DocumentHandler
	BatchHandler     *handlers.BatchHandler
	WorkflowHandler  *handlers.WorkflowHandler
	StatusHandler    *handlers.StatusHandler
	StageHandler     *handlers.StageHandler
	HealthHandler    *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.OtelEnabled {
		r.Use(otelgin.Middleware("haystack-service"))
	}
	r.Use(middleware.AttachTraceContext())
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(middleware.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}

	if cfg.IngestHandler != nil {
		r.POST("/ingest", cfg.IngestHandler.Ingest)
	}

	if cfg.SearchHandler != nil {
		r.POST("/search", cfg.SearchHandler.Search)
	}

	if cfg.HierarchyHandler != nil {
		r.POST("/hierarchy", cfg.HierarchyHandler.GetHierarchy)
	}
	if cfg.DocumentHandler != nil {
		r.GET("/get_document_with_context/:document_id", cfg.DocumentHandler.GetDocumentWithContext)
	}
	if cfg.BatchHandler != nil {
		r.POST("/batch_hierarchy", cfg.BatchHandler.GetBatchHierarchy)
	}

	if cfg.WorkflowHandler != nil {
		r.GET("/get_final_summary/:workflow_id", cfg.WorkflowHandler.GetFinalSummary)
		r.GET("/get_complete_tree/:workflow_id", cfg.WorkflowHandler.GetCompleteTree)
	}

	if cfg.StatusHandler != nil {
		r.POST("/update_status", cfg.StatusHandler.UpdateStatus)
	}
	if cfg.StageHandler != nil {
		r.POST("/get_by_stage", cfg.StageHandler.GetByStage)
	}

	return r
}
