package frontend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/gengallery/internal/backend/handlecache"
	"github.com/jo-hoe/gengallery/internal/common"
	"github.com/jo-hoe/gengallery/internal/core"
)

// FrontendService serves the binary content behind gallery handles.
type FrontendService struct {
	coreService *core.CoreService
}

func NewFrontendService(coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
	}
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.GET("/blob/:handle", service.blobHandler)
	e.GET("/api/images/:id/export", service.exportHandler)
}

func (service *FrontendService) blobHandler(ctx echo.Context) error {
	handle, ok := handlecache.ParseHandle(ctx.Param("handle"))
	if !ok {
		slog.Warn("blobHandler: malformed handle",
			"status", http.StatusNotFound, "handle", ctx.Param("handle"))
		return ctx.String(http.StatusNotFound, "Image not available")
	}

	blob, err := service.coreService.Resolve(handle)
	if err != nil {
		slog.Debug("blobHandler: handle not available",
			"status", http.StatusNotFound, "handle", handle, "error", err)
		return ctx.String(http.StatusNotFound, "Image not available")
	}

	// handles are immutable until revoked, a revoked one answers 404
	ctx.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return ctx.Blob(http.StatusOK, blob.MimeType, blob.Data)
}

func (service *FrontendService) exportHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	if id == "" {
		slog.Warn("exportHandler: missing image id",
			"status", http.StatusBadRequest,
			"route", "/api/images/:id/export")
		return ctx.String(http.StatusBadRequest, "Missing image ID")
	}

	export, err := service.coreService.Export(ctx.Request().Context(), id)
	if errors.Is(err, handlecache.ErrNotFound) {
		return ctx.String(http.StatusNotFound, "Image not available")
	}
	if err != nil {
		slog.Error("exportHandler: failed to export image",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to export image")
	}

	common.SetNoCache(ctx)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.Filename))
	return ctx.Blob(http.StatusOK, export.MimeType, export.Data)
}
