package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Code4me2/data-compose/internal/http/response"
	"github.com/Code4me2/data-compose/internal/services"
)

type StageHandler struct {
	status services.StatusService
}

func NewStageHandler(status services.StatusService) *StageHandler {
	return &StageHandler{status: status}
}

// POST /get_by_stage
func (h *StageHandler) GetByStage(c *gin.Context) {
	var req services.StageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	result, err := h.status.GetByStage(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}
