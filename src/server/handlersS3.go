package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "imgserv/src/app"
)

type (
	// Uploads is the upload/image service behind ImageHandler.
	Uploads interface {
		CreateUploadURL(ctx context.Context, req app.UploadRequest, userID uint) (*app.UploadResponse, error)
		GetDownloadURL(ctx context.Context, key string, opts app.GetOptions) (*app.DownloadResponse, error)
		ListMyImages(ctx context.Context, userID uint, page app.Page) ([]app.ImageView, error)
		ListUserImages(ctx context.Context, targetUserID uint, page app.Page) ([]app.ImageView, error)
		ListAllImages(ctx context.Context, page app.Page) ([]app.ImageView, error)
	}

	// UserLookup reads users for the profile endpoint.
	UserLookup interface {
		GetUserByID(ctx context.Context, id uint) (*app.User, error)
	}

	ImageHandler struct {
		uploads Uploads
		users   UserLookup
		log     logrus.FieldLogger
	}

	ImageListResponse struct {
		Images []app.ImageView `json:"images"`
		Count  int             `json:"count"`
	}
)

const (
	publicListingKey     = "public"
	userListingPrefix    = "user/"
	defaultGetExpirySecs = 900
)

func NewImageHandler(uploads Uploads, users UserLookup, log logrus.FieldLogger) *ImageHandler {
	return &ImageHandler{uploads: uploads, users: users, log: log}
}

func (h *ImageHandler) CreateUpload(c *gin.Context) {
	var req app.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithDetail(c, http.StatusBadRequest, "filename and contentType are required")
		return
	}
	resp, err := h.uploads.CreateUploadURL(c.Request.Context(), req, currentPrincipal(c).UserID)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ImageHandler) ListMine(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	images, err := h.uploads.ListMyImages(c.Request.Context(), currentPrincipal(c).UserID, page)
	h.writeList(c, images, err)
}

// GetByKey serves everything under /images/. "public" and "user/<id>" are
// listings; any other path is an object key to presign.
func (h *ImageHandler) GetByKey(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	if key == publicListingKey {
		h.listAll(c)
		return
	}
	if rest, ok := strings.CutPrefix(key, userListingPrefix); ok {
		if id, err := strconv.ParseUint(rest, 10, 64); err == nil {
			h.listUser(c, uint(id))
			return
		}
	}
	h.download(c, key)
}

func (h *ImageHandler) listAll(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	images, err := h.uploads.ListAllImages(c.Request.Context(), page)
	h.writeList(c, images, err)
}

func (h *ImageHandler) listUser(c *gin.Context, userID uint) {
	page, err := pageFromQuery(c)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	images, err := h.uploads.ListUserImages(c.Request.Context(), userID, page)
	h.writeList(c, images, err)
}

func (h *ImageHandler) download(c *gin.Context, key string) {
	opts := app.GetOptions{Filename: c.Query("filename")}
	if raw := c.Query("as_download"); raw != "" {
		asDownload, err := strconv.ParseBool(raw)
		if err != nil {
			abortWithDetail(c, http.StatusBadRequest, "Invalid as_download")
			return
		}
		opts.AsDownload = asDownload
	}
	expires, err := intQuery(c, "expires_in", defaultGetExpirySecs)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	opts.ExpiresIn = time.Duration(expires) * time.Second

	resp, err := h.uploads.GetDownloadURL(c.Request.Context(), key, opts)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ImageHandler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abortWithDetail(c, http.StatusBadRequest, "Invalid user id")
		return
	}
	user, err := h.users.GetUserByID(c.Request.Context(), uint(id))
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *ImageHandler) writeList(c *gin.Context, images []app.ImageView, err error) {
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ImageListResponse{Images: images, Count: len(images)})
}
