package handler

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"vox-chat/internal/observability"
	"vox-chat/internal/storage"
	"vox-chat/internal/transport/httpdto"
	voxerrors "vox-chat/pkg/errors"
	"vox-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UploadsPath is the public prefix stored files are served under.
const UploadsPath = "/api/uploads/"

// multipartOverhead covers boundaries and headers around the file part.
const multipartOverhead = 1 << 20

type UploadResponse struct {
	FilePath string `json:"filePath"`
}

type UploadHandler struct {
	store    storage.FileStore
	maxBytes int64
	metrics  *observability.Metrics
	log      *logger.Logger
}

func NewUploadHandler(store storage.FileStore, maxBytes int64, metrics *observability.Metrics, l *logger.Logger) *UploadHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &UploadHandler{store: store, maxBytes: maxBytes, metrics: metrics, log: l}
}

// Upload accepts a multipart "file" and stores it under a random name.
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			h.tooLarge(c)
		default:
			h.metrics.Upload("rejected")
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("No file uploaded.", "NO_FILE"))
		}
		return
	}
	if header.Size > h.maxBytes {
		h.tooLarge(c)
		return
	}

	name := storage.NewName(header.Filename)
	if err := h.save(c, header, name); err != nil {
		h.metrics.Upload("error")
		h.log.Ctx(c.Request.Context()).Error("upload failed", zap.String("file", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("upload failed", "INTERNAL_ERROR"))
		return
	}

	h.metrics.Upload("success")
	c.JSON(http.StatusOK, UploadResponse{FilePath: UploadsPath + name})
}

func (h *UploadHandler) save(c *gin.Context, header *multipart.FileHeader, name string) error {
	f, err := header.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	return h.store.Save(c.Request.Context(), name, header.Header.Get("Content-Type"), f, header.Size)
}

func (h *UploadHandler) tooLarge(c *gin.Context) {
	h.metrics.Upload("rejected")
	c.JSON(http.StatusRequestEntityTooLarge, httpdto.NewErrorResponse(voxerrors.ErrTooLarge.Error(), "FILE_TOO_LARGE"))
}

// Serve streams a stored file, or redirects when the store serves files
// itself.
func (h *UploadHandler) Serve(c *gin.Context) {
	name := c.Param("name")
	if err := storage.ValidName(name); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid file name", "INVALID_REQUEST"))
		return
	}
	ctx := c.Request.Context()

	if r, ok := h.store.(storage.Redirector); ok {
		url, err := r.RedirectURL(ctx, name)
		if err != nil {
			h.log.Ctx(ctx).Error("upload redirect failed", zap.String("file", name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("could not resolve file", "INTERNAL_ERROR"))
			return
		}
		c.Redirect(http.StatusFound, url)
		return
	}

	rc, err := h.store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, voxerrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("file not found", "NOT_FOUND"))
			return
		}
		h.log.Ctx(ctx).Error("upload open failed", zap.String("file", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("could not open file", "INTERNAL_ERROR"))
		return
	}
	defer rc.Close()
	ct := contentType(name)
	headers := map[string]string{"X-Content-Type-Options": "nosniff"}
	if !inlineType(ct) {
		headers["Content-Disposition"] = mime.FormatMediaType("attachment", map[string]string{"filename": name})
	}
	c.DataFromReader(http.StatusOK, -1, ct, rc, headers)
}

// inlineType reports whether a file of this type may render in the browser.
// Anything else, HTML and SVG included, is served as a download.
func inlineType(ct string) bool {
	if ct == "image/svg+xml" {
		return false
	}
	for _, p := range []string{"image/", "audio/", "video/"} {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return ct == "application/pdf"
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
