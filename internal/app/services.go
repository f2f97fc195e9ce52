package app

import (
	"github.com/Code4me2/data-compose/internal/platform/logger"
	"github.com/Code4me2/data-compose/internal/services"
)

type Services struct {
	Documents services.DocumentService
	Search    services.SearchService
	Navigator services.NavigatorService
	Workflows services.WorkflowService
	Status    services.StatusService
	Health    services.HealthService
}

func wireServices(log *logger.Logger, clients Clients) Services {
	return Services{
		Documents: services.NewDocumentService(log, clients.Store, clients.Embedder),
		Search:    services.NewSearchService(log, clients.Store, clients.Embedder),
		Navigator: services.NewNavigatorService(log, clients.Store),
		Workflows: services.NewWorkflowService(log, clients.Store),
		Status:    services.NewStatusService(log, clients.Store),
		Health:    services.NewHealthService(log, clients.Store, clients.Embedder),
	}
}
