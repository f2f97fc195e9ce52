package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Code4me2/data-compose/internal/http/response"
	"github.com/Code4me2/data-compose/internal/platform/apierr"
	"github.com/Code4me2/data-compose/internal/services"
)

// respondServiceError maps service errors onto the wire: typed api
// errors keep their status and code, anything else is a 500.
func respondServiceError(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		response.RespondError(c, ae.Status, ae.Code, err)
		return
	}
	response.RespondError(c, http.StatusInternalServerError, services.CodeInternal, err)
}
