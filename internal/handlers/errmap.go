package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/dataroom/internal/policy"
	"github.com/dealbridge/dataroom/internal/services"
	appErrors "github.com/dealbridge/dataroom/pkg/errors"
	"github.com/dealbridge/dataroom/pkg/response"
)

// serviceError translates service sentinels into the client-facing error
// taxonomy and writes the response. Unknown errors collapse to a 500
// without leaking internals.
func serviceError(c *gin.Context, err error) {
	response.Error(c, mapServiceError(err))
}

func mapServiceError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil

	case errors.Is(err, services.ErrNoPermission):
		return appErrors.ErrForbidden
	case errors.Is(err, services.ErrNDARequired):
		return appErrors.ErrNDARequired
	case errors.Is(err, services.ErrVisibilityDenied):
		return appErrors.ErrVisibilityDenied
	case errors.Is(err, policy.ErrScanPending):
		return appErrors.ErrScanInProgress
	case errors.Is(err, policy.ErrScanBlocked):
		return appErrors.ErrScanBlocked

	case errors.Is(err, services.ErrListingNotFound),
		errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, services.ErrDocumentNotFound),
		errors.Is(err, services.ErrVersionNotFound),
		errors.Is(err, services.ErrFolderNotFound),
		errors.Is(err, services.ErrNoServableVersion),
		errors.Is(err, services.ErrSettingsNotFound),
		errors.Is(err, services.ErrInviteNotFound):
		return appErrors.ErrNotFound

	case errors.Is(err, services.ErrInviteExpired):
		return appErrors.New("INVITE_EXPIRED", "Invite has expired", http.StatusGone)
	case errors.Is(err, services.ErrInviteRevoked):
		return appErrors.New("INVITE_REVOKED", "Invite was revoked", http.StatusGone)
	case errors.Is(err, services.ErrInviteAlreadyUsed):
		return appErrors.New("INVITE_ALREADY_USED", "Invite has already been accepted", http.StatusConflict)
	case errors.Is(err, services.ErrInviteEmailMismatch):
		return appErrors.New("INVITE_EMAIL_MISMATCH", "Invite was issued to a different email address", http.StatusForbidden)
	case errors.Is(err, services.ErrInviteAlreadyPending):
		return appErrors.New("INVITE_ALREADY_PENDING", "A live invite already exists for this email", http.StatusConflict)
	case errors.Is(err, services.ErrInviteEmailHasAccess):
		return appErrors.New("INVITE_EMAIL_HAS_ACCESS", "This email already has access to the data room", http.StatusConflict)

	case errors.Is(err, services.ErrInviteRoleInvalid),
		errors.Is(err, services.ErrVisibilityInvalid),
		errors.Is(err, services.ErrScanStatusInvalid),
		errors.Is(err, services.ErrInvalidIPEntry),
		errors.Is(err, services.ErrInvalidCountryCode):
		return appErrors.NewBadRequest(err.Error())

	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
