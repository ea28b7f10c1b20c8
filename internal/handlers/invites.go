package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/internal/services"
	"github.com/dealbridge/dataroom/pkg/response"
)

// InviteHandler serves the invite lifecycle routes.
type InviteHandler struct {
	rooms   *services.DataRoomService
	invites *services.InviteService
}

// NewInviteHandler constructs an InviteHandler.
func NewInviteHandler(rooms *services.DataRoomService, invites *services.InviteService) *InviteHandler {
	return &InviteHandler{rooms: rooms, invites: invites}
}

type createInviteRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Role  string `json:"role" validate:"required,oneof=editor viewer"`
}

// POST /api/datarooms/:listingId/invites
func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	room, err := h.rooms.GetByListing(ctx, c.Param("listingId"))
	if err != nil {
		serviceError(c, err)
		return
	}

	invite, token, err := h.invites.Create(ctx, currentIdentity(c), services.CreateInviteInput{
		DataRoomID: room.ID,
		Email:      req.Email,
		Role:       models.Role(req.Role),
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	// The raw token appears in this response only; the database keeps the hash.
	response.Success(c, http.StatusCreated, gin.H{"invite": invite, "token": token})
}

// GET /api/datarooms/:listingId/invites
func (h *InviteHandler) List(c *gin.Context) {
	ctx := requestContext(c)

	room, err := h.rooms.GetByListing(ctx, c.Param("listingId"))
	if err != nil {
		serviceError(c, err)
		return
	}

	invites, err := h.invites.List(ctx, currentIdentity(c), room.ID)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, invites)
}

// DELETE /api/datarooms/:listingId/invites/:inviteId
func (h *InviteHandler) Revoke(c *gin.Context) {
	ctx := requestContext(c)

	room, err := h.rooms.GetByListing(ctx, c.Param("listingId"))
	if err != nil {
		serviceError(c, err)
		return
	}

	if err := h.invites.Revoke(ctx, currentIdentity(c), room.ID, c.Param("inviteId")); err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

type acceptInviteRequest struct {
	Token string `json:"token" validate:"required,min=16,max=128"`
}

// POST /api/invites/accept
func (h *InviteHandler) Accept(c *gin.Context) {
	var req acceptInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.invites.Accept(requestContext(c), currentIdentity(c), req.Token)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"data_room_id":       result.Invite.DataRoomID,
		"role":               result.Invite.Role,
		"already_had_access": result.AlreadyHadAccess,
	})
}
