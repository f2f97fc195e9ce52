package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Code4me2/data-compose/internal/http/response"
	"github.com/Code4me2/data-compose/internal/services"
)

type StatusHandler struct {
	status services.StatusService
}

func NewStatusHandler(status services.StatusService) *StatusHandler {
	return &StatusHandler{status: status}
}

// POST /update_status
func (h *StatusHandler) UpdateStatus(c *gin.Context) {
	var req services.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	result, err := h.status.UpdateStatus(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}
