package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Code4me2/data-compose/internal/http/response"
	"github.com/Code4me2/data-compose/internal/services"
)

type IngestHandler struct {
	documents services.DocumentService
}

func NewIngestHandler(documents services.DocumentService) *IngestHandler {
	return &IngestHandler{documents: documents}
}

// POST /ingest
//
// The body is a bare JSON array of documents; n8n nodes emit item
// lists, not wrapped objects.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var specs []services.DocumentSpec
	if err := c.ShouldBindJSON(&specs); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	result, err := h.documents.Ingest(c.Request.Context(), specs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}
