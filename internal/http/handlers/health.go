package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Code4me2/data-compose/internal/http/response"
	"github.com/Code4me2/data-compose/internal/services"
)

type HealthHandler struct {
	health services.HealthService
}

func NewHealthHandler(health services.HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

// GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response.RespondOK(c, h.health.Check(c.Request.Context()))
}
