package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/dataroom/internal/services"
	"github.com/dealbridge/dataroom/pkg/response"
)

// SettingsHandler serves the room security settings routes.
type SettingsHandler struct {
	rooms    *services.DataRoomService
	settings *services.SettingsService
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(rooms *services.DataRoomService, settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{rooms: rooms, settings: settings}
}

// GET /api/datarooms/:listingId/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	ctx := requestContext(c)

	room, err := h.rooms.GetByListing(ctx, c.Param("listingId"))
	if err != nil {
		serviceError(c, err)
		return
	}

	settings, err := h.settings.Get(ctx, currentIdentity(c), room.ID)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, settings)
}

// PATCH /api/datarooms/:listingId/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var patch services.SettingsPatch
	if !bindAndValidate(c, &patch) {
		return
	}

	ctx := requestContext(c)

	room, err := h.rooms.GetByListing(ctx, c.Param("listingId"))
	if err != nil {
		serviceError(c, err)
		return
	}

	settings, err := h.settings.Update(ctx, currentIdentity(c), room.ID, patch)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, settings)
}
