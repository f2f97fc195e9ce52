package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Code4me2/data-compose/internal/http/response"
	"github.com/Code4me2/data-compose/internal/services"
)

type HierarchyHandler struct {
	navigator services.NavigatorService
}

func NewHierarchyHandler(navigator services.NavigatorService) *HierarchyHandler {
	return &HierarchyHandler{navigator: navigator}
}

// POST /hierarchy
func (h *HierarchyHandler) GetHierarchy(c *gin.Context) {
	var req services.HierarchyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	result, err := h.navigator.GetHierarchy(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}
