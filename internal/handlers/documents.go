package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/internal/services"
	"github.com/dealbridge/dataroom/pkg/response"
)

// DocumentHandler serves the document catalogue and URL issuance routes.
type DocumentHandler struct {
	rooms     *services.DataRoomService
	documents *services.DocumentService
	urls      *services.URLService
}

// NewDocumentHandler constructs a DocumentHandler.
func NewDocumentHandler(rooms *services.DataRoomService, documents *services.DocumentService, urls *services.URLService) *DocumentHandler {
	return &DocumentHandler{rooms: rooms, documents: documents, urls: urls}
}

// GET /api/datarooms/:listingId/documents
func (h *DocumentHandler) List(c *gin.Context) {
	ctx := requestContext(c)
	caller := currentIdentity(c)

	// The listing owner's first visit provisions the room.
	room, err := h.rooms.EnsureForListing(ctx, c.Param("listingId"), caller.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}

	listing, err := h.documents.List(ctx, caller, room.ID)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, listing)
}

type uploadRequest struct {
	DocumentID        string  `json:"document_id"`
	FolderID          *string `json:"folder_id"`
	RequirementID     *string `json:"requirement_id"`
	Title             string  `json:"title" validate:"max=255"`
	Visibility        string  `json:"visibility" validate:"omitempty,oneof=all owner_only transaction_only nda_only custom"`
	DownloadBlocked   bool    `json:"download_blocked"`
	WatermarkRequired bool    `json:"watermark_required"`
	StorageKey        string  `json:"storage_key" validate:"required,max=1024"`
	FileName          string  `json:"file_name" validate:"required,max=255"`
	MimeType          string  `json:"mime_type" validate:"max=255"`
	Size              int64   `json:"size" validate:"min=0"`
}

// POST /api/datarooms/:listingId/documents
func (h *DocumentHandler) Upload(c *gin.Context) {
	var req uploadRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	caller := currentIdentity(c)

	room, err := h.rooms.EnsureForListing(ctx, c.Param("listingId"), caller.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}

	document, version, err := h.documents.Upload(ctx, caller, services.UploadInput{
		DataRoomID:        room.ID,
		DocumentID:        req.DocumentID,
		FolderID:          req.FolderID,
		RequirementID:     req.RequirementID,
		Title:             req.Title,
		Visibility:        models.Visibility(req.Visibility),
		DownloadBlocked:   req.DownloadBlocked,
		WatermarkRequired: req.WatermarkRequired,
		StorageKey:        req.StorageKey,
		FileName:          req.FileName,
		MimeType:          req.MimeType,
		Size:              req.Size,
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"document": document, "version": version})
}

type updateDocumentRequest struct {
	Title             *string               `json:"title" validate:"omitempty,min=1,max=255"`
	FolderID          *string               `json:"folder_id"`
	ClearFolder       bool                  `json:"clear_folder"`
	Visibility        *string               `json:"visibility" validate:"omitempty,oneof=all owner_only transaction_only nda_only custom"`
	DownloadBlocked   *bool                 `json:"download_blocked"`
	WatermarkRequired *bool                 `json:"watermark_required"`
	Grants            []services.GrantInput `json:"grants"`
}

// PATCH /api/documents/:id
func (h *DocumentHandler) Update(c *gin.Context) {
	var req updateDocumentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	documentID := c.Param("id")

	roomID, err := h.documents.RoomIDForDocument(ctx, documentID)
	if err != nil {
		serviceError(c, err)
		return
	}

	input := services.UpdateInput{
		Title:             req.Title,
		FolderID:          req.FolderID,
		ClearFolder:       req.ClearFolder,
		DownloadBlocked:   req.DownloadBlocked,
		WatermarkRequired: req.WatermarkRequired,
		Grants:            req.Grants,
	}
	if req.Visibility != nil {
		visibility := models.Visibility(*req.Visibility)
		input.Visibility = &visibility
	}

	document, err := h.documents.Update(ctx, currentIdentity(c), roomID, documentID, input)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, document)
}

type createFolderRequest struct {
	Name     string  `json:"name" validate:"required,min=1,max=255"`
	ParentID *string `json:"parent_id"`
}

// POST /api/datarooms/:listingId/folders
func (h *DocumentHandler) CreateFolder(c *gin.Context) {
	var req createFolderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	caller := currentIdentity(c)

	room, err := h.rooms.EnsureForListing(ctx, c.Param("listingId"), caller.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}

	folder, err := h.documents.CreateFolder(ctx, caller, room.ID, req.Name, req.ParentID)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, folder)
}

type issueURLRequest struct {
	VersionID string `json:"version_id"`
}

// POST /api/documents/:id/view-url
func (h *DocumentHandler) IssueViewURL(c *gin.Context) {
	h.issueURL(c, h.urls.IssueViewURL)
}

// POST /api/documents/:id/download-url
func (h *DocumentHandler) IssueDownloadURL(c *gin.Context) {
	h.issueURL(c, h.urls.IssueDownloadURL)
}

func (h *DocumentHandler) issueURL(c *gin.Context, issue func(ctx context.Context, caller services.Identity, dataRoomID, documentID, versionID string) (*services.Issued, error)) {
	var req issueURLRequest
	if c.Request != nil && c.Request.ContentLength > 0 {
		if !bindAndValidate(c, &req) {
			return
		}
	}

	ctx := requestContext(c)
	documentID := c.Param("id")

	roomID, err := h.documents.RoomIDForDocument(ctx, documentID)
	if err != nil {
		serviceError(c, err)
		return
	}

	issued, err := issue(ctx, currentIdentity(c), roomID, documentID, req.VersionID)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, issued)
}
