package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/dataroom/internal/services"
	"github.com/dealbridge/dataroom/pkg/response"
)

// NDAHandler serves the NDA acceptance route.
type NDAHandler struct {
	rooms  *services.DataRoomService
	access *services.AccessService
}

// NewNDAHandler constructs an NDAHandler.
func NewNDAHandler(rooms *services.DataRoomService, access *services.AccessService) *NDAHandler {
	return &NDAHandler{rooms: rooms, access: access}
}

// POST /api/datarooms/:listingId/nda/accept
func (h *NDAHandler) Accept(c *gin.Context) {
	ctx := requestContext(c)

	room, err := h.rooms.GetByListing(ctx, c.Param("listingId"))
	if err != nil {
		serviceError(c, err)
		return
	}

	if err := h.access.AcceptNDA(ctx, room.ID, currentIdentity(c)); err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"accepted": true})
}

// GET /api/datarooms/:listingId/nda
func (h *NDAHandler) Status(c *gin.Context) {
	ctx := requestContext(c)
	caller := currentIdentity(c)

	room, err := h.rooms.GetByListing(ctx, c.Param("listingId"))
	if err != nil {
		serviceError(c, err)
		return
	}

	satisfied, err := h.access.NDASatisfied(ctx, room.ID, caller)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"accepted": satisfied})
}
