package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Code4me2/data-compose/internal/http/response"
	"github.com/Code4me2/data-compose/internal/services"
)

type BatchHandler struct {
	navigator services.NavigatorService
}

func NewBatchHandler(navigator services.NavigatorService) *BatchHandler {
	return &BatchHandler{navigator: navigator}
}

// POST /batch_hierarchy
func (h *BatchHandler) GetBatchHierarchy(c *gin.Context) {
	var req services.BatchHierarchyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	result, err := h.navigator.GetBatchHierarchy(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}
