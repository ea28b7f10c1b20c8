package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/internal/services"
	appErrors "github.com/dealbridge/dataroom/pkg/errors"
	"github.com/dealbridge/dataroom/pkg/response"
)

// AuditHandler serves the audit trail routes. Only the room owner may read
// the trail.
type AuditHandler struct {
	rooms  *services.DataRoomService
	access *services.AccessService
	audit  *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(rooms *services.DataRoomService, access *services.AccessService, audit *services.AuditService) *AuditHandler {
	return &AuditHandler{rooms: rooms, access: access, audit: audit}
}

// GET /api/datarooms/:listingId/audit
func (h *AuditHandler) List(c *gin.Context) {
	ctx := requestContext(c)
	caller := currentIdentity(c)

	room, err := h.rooms.GetByListing(ctx, c.Param("listingId"))
	if err != nil {
		serviceError(c, err)
		return
	}

	role, err := h.access.ResolveRole(ctx, room.ID, caller.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	if role != models.RoleOwner {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	entries, total, err := h.audit.List(ctx, room.ID, services.AuditListOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  auditFilters(c),
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, entries, &response.Meta{
		Page:    page,
		PerPage: perPage,
		Total:   int(total),
	})
}

// GET /api/datarooms/:listingId/audit/export
func (h *AuditHandler) Export(c *gin.Context) {
	ctx := requestContext(c)
	caller := currentIdentity(c)

	room, err := h.rooms.GetByListing(ctx, c.Param("listingId"))
	if err != nil {
		serviceError(c, err)
		return
	}

	role, err := h.access.ResolveRole(ctx, room.ID, caller.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	if role != models.RoleOwner {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	entries, err := h.audit.Export(ctx, room.ID, auditFilters(c))
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, entries)
}

func auditFilters(c *gin.Context) services.AuditFilters {
	var filters services.AuditFilters
	filters.Action = c.Query("action")
	filters.ActorID = c.Query("actor_id")

	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}
	return filters
}
