package app

import (
	"fmt"

	"github.com/Code4me2/data-compose/internal/platform/elastic"
	"github.com/Code4me2/data-compose/internal/platform/embedding"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

type Clients struct {
	Store    elastic.Store
	Embedder embedding.Client
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	store, err := elastic.NewStore(log, cfg.Elastic)
	if err != nil {
		return Clients{}, fmt.Errorf("init elasticsearch store: %w", err)
	}
	embedder, err := embedding.NewClient(log, cfg.Embedding)
	if err != nil {
		return Clients{}, fmt.Errorf("init embedding client: %w", err)
	}
	return Clients{Store: store, Embedder: embedder}, nil
}
