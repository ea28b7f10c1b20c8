package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/dataroom/internal/blobstore"
	appErrors "github.com/dealbridge/dataroom/pkg/errors"
	"github.com/dealbridge/dataroom/pkg/response"
)

// BlobHandler redeems URLs minted by the local blob store. Authorisation
// lives entirely in the signature; this route is mounted outside the JWT
// middleware, exactly like a cloud presigned URL would be.
type BlobHandler struct {
	store *blobstore.LocalStore
}

// NewBlobHandler constructs a BlobHandler.
func NewBlobHandler(store *blobstore.LocalStore) *BlobHandler {
	return &BlobHandler{store: store}
}

// GET /blob/*key
func (h *BlobHandler) Serve(c *gin.Context) {
	key := c.Param("key")
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}

	query := c.Request.URL.Query()
	if err := h.store.Verify(key, query); err != nil {
		switch {
		case errors.Is(err, blobstore.ErrURLExpired):
			response.Error(c, appErrors.New("URL_EXPIRED", "Link has expired", http.StatusForbidden))
		default:
			response.Error(c, appErrors.ErrForbidden)
		}
		return
	}

	reader, err := h.store.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", blobstore.ContentDisposition(query.Get("disp"), query.Get("name")))
	c.Header("Cache-Control", "private, no-store")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}
