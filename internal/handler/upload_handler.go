package handler

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garasku/garasku-api/pkg/config"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
	"github.com/garasku/garasku-api/pkg/response"
	"github.com/garasku/garasku-api/pkg/storage"
)

// UploadHandler stores bill files and service photos and serves them back
// through signed URLs.
type UploadHandler struct {
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
	cfg    config.UploadsConfig
}

// NewUploadHandler constructs the handler.
func NewUploadHandler(store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg config.UploadsConfig) *UploadHandler {
	return &UploadHandler{store: store, signer: signer, cfg: cfg}
}

// Upload godoc
// @Summary Upload a file
// @Tags Uploads
// @Accept mpfd
// @Produce json
// @Param file formData file true "File to upload"
// @Param kind formData string false "File kind (bill, photo)"
// @Success 201 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a file field is required"))
		return
	}
	if h.cfg.MaxFileSizeBytes > 0 && fileHeader.Size > h.cfg.MaxFileSizeBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds the %d byte limit", h.cfg.MaxFileSizeBytes)))
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if len(h.cfg.AllowedMIMEs) > 0 && !h.mimeAllowed(contentType) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("content type %s is not accepted", contentType)))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close() //nolint:errcheck

	kind := c.PostForm("kind")
	if kind == "" {
		kind = "photo"
	}
	relPath := filepath.Join(kind, time.Now().UTC().Format("2006/01"),
		uuid.NewString()+strings.ToLower(filepath.Ext(fileHeader.Filename)))
	if _, err := h.store.SaveStream(relPath, src); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload"))
		return
	}

	token, expiresAt, err := h.signer.Generate(claims.UserID, relPath)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL"))
		return
	}

	response.JSON(c, http.StatusCreated, gin.H{
		"path":      relPath,
		"url":       "/api/v1/uploads/file?token=" + token,
		"expiresAt": expiresAt.UTC(),
	}, nil)
}

// Download godoc
// @Summary Download a file via signed token
// @Tags Uploads
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /uploads/file [get]
func (h *UploadHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a token is required"))
		return
	}
	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token"))
		return
	}

	file, err := h.store.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(relPath)))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}

func (h *UploadHandler) mimeAllowed(contentType string) bool {
	for _, allowed := range h.cfg.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}
