package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"vox-chat/internal/domain"
	"vox-chat/internal/transport/httpdto"
	voxerrors "vox-chat/pkg/errors"
	"vox-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PreviewFetcher interface {
	Fetch(ctx context.Context, url string) (*domain.LinkPreview, error)
}

type PreviewHandler struct {
	fetcher PreviewFetcher
	log     *logger.Logger
}

func NewPreviewHandler(fetcher PreviewFetcher, l *logger.Logger) *PreviewHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &PreviewHandler{fetcher: fetcher, log: l}
}

func (h *PreviewHandler) Get(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("URL is required", "INVALID_REQUEST"))
		return
	}

	p, err := h.fetcher.Fetch(c.Request.Context(), url)
	if err != nil && !errors.Is(err, voxerrors.ErrInvalidInput) {
		h.log.Ctx(c.Request.Context()).Debug("preview failed", zap.String("url", url), zap.Error(err))
	}
	if err != nil || p == nil {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("Could not generate a preview for this URL.", "NOT_FOUND"))
		return
	}
	c.JSON(http.StatusOK, p)
}
