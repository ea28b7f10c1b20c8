package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/internal/services"
	"github.com/dealbridge/dataroom/pkg/response"
)

// ScanHandler receives scan verdicts from the external virus scanner.
// Routed behind the scanner shared-secret middleware, never user JWTs.
type ScanHandler struct {
	documents *services.DocumentService
}

// NewScanHandler constructs a ScanHandler.
func NewScanHandler(documents *services.DocumentService) *ScanHandler {
	return &ScanHandler{documents: documents}
}

type scanStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending clean blocked"`
}

// POST /api/versions/:id/scan-status
func (h *ScanHandler) SetStatus(c *gin.Context) {
	var req scanStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	scanner := services.Identity{UserID: "", Email: "scanner@internal", IPAddress: c.ClientIP()}

	version, err := h.documents.SetScanStatus(requestContext(c), scanner, c.Param("id"), models.ScanStatus(req.Status))
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, version)
}
