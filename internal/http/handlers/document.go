package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Code4me2/data-compose/internal/http/response"
	"github.com/Code4me2/data-compose/internal/services"
)

type DocumentHandler struct {
	navigator services.NavigatorService
}

func NewDocumentHandler(navigator services.NavigatorService) *DocumentHandler {
	return &DocumentHandler{navigator: navigator}
}

// GET /get_document_with_context/:document_id
func (h *DocumentHandler) GetDocumentWithContext(c *gin.Context) {
	includeFull, ok := boolQuery(c, "include_full_content", true)
	if !ok {
		return
	}
	includeSiblings, ok := boolQuery(c, "include_siblings", false)
	if !ok {
		return
	}

	result, err := h.navigator.GetDocumentWithContext(c.Request.Context(), services.DocumentContextRequest{
		DocumentID:         c.Param("document_id"),
		IncludeFullContent: includeFull,
		IncludeSiblings:    includeSiblings,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}

// boolQuery parses an optional boolean query parameter, writing a 400
// and returning ok=false on garbage input.
func boolQuery(c *gin.Context, name string, def bool) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return false, false
	}
	return v, true
}

// intQuery parses an optional integer query parameter the same way.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return 0, false
	}
	return v, true
}
