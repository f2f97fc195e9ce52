package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Code4me2/data-compose/internal/http/response"
	"github.com/Code4me2/data-compose/internal/services"
)

type WorkflowHandler struct {
	workflows services.WorkflowService
}

func NewWorkflowHandler(workflows services.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows}
}

// GET /get_final_summary/:workflow_id
func (h *WorkflowHandler) GetFinalSummary(c *gin.Context) {
	result, err := h.workflows.GetFinalSummary(c.Request.Context(), c.Param("workflow_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}

// GET /get_complete_tree/:workflow_id
func (h *WorkflowHandler) GetCompleteTree(c *gin.Context) {
	maxDepth, ok := intQuery(c, "max_depth", 0)
	if !ok {
		return
	}
	includeContent, ok := boolQuery(c, "include_content", false)
	if !ok {
		return
	}

	result, err := h.workflows.GetCompleteTree(c.Request.Context(), services.CompleteTreeRequest{
		WorkflowID:     c.Param("workflow_id"),
		MaxDepth:       maxDepth,
		IncludeContent: includeContent,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}
