package services

import (
	"context"

	"github.com/Code4me2/data-compose/internal/platform/elastic"
	"github.com/Code4me2/data-compose/internal/platform/embedding"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

type HealthResponse struct {
	Status         string `json:"status"`
	Elasticsearch  string `json:"elasticsearch"`
	DocumentCount  int    `json:"document_count"`
	EmbeddingModel string `json:"embedding_model"`
}

type HealthService interface {
	Check(ctx context.Context) *HealthResponse
}

type healthService struct {
	log      *logger.Logger
	store    elastic.Store
	embedder embedding.Client
}

func NewHealthService(log *logger.Logger, store elastic.Store, embedder embedding.Client) HealthService {
	return &healthService{
		log:      log.With("service", "HealthService"),
		store:    store,
		embedder: embedder,
	}
}

// Check never fails: an unreachable store degrades the report instead.
func (s *healthService) Check(ctx context.Context) *HealthResponse {
	resp := &HealthResponse{
		Status:         "healthy",
		Elasticsearch:  "connected",
		EmbeddingModel: s.embedder.Model(),
	}

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("Health check: elasticsearch unreachable", "error", err)
		resp.Status = "degraded"
		resp.Elasticsearch = "unreachable"
		return resp
	}

	count, err := s.store.Count(ctx, nil)
	if err != nil {
		s.log.Warn("Health check: document count failed", "error", err)
		resp.Status = "degraded"
		return resp
	}
	resp.DocumentCount = count
	return resp
}
