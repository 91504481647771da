package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/docker/go-units"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jo-hoe/gengallery/internal/common"
	"github.com/jo-hoe/gengallery/internal/core"
	"github.com/jo-hoe/gengallery/internal/generation"
)

// APIService exposes the gallery as a JSON API.
type APIService struct {
	coreService   *core.CoreService
	maxUploadSize int64
}

type ImageCreatedResponse struct {
	ID string `json:"id"`
}

type GenerateRequest struct {
	Model  string `json:"model" validate:"required"`
	Prompt string `json:"prompt" validate:"required"`
}

type ModelResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// NewAPIService serves coreService; uploads larger than maxUploadSize bytes
// are rejected with 413.
func NewAPIService(coreService *core.CoreService, maxUploadSize int64) *APIService {
	return &APIService{
		coreService:   coreService,
		maxUploadSize: maxUploadSize,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})

	e.GET("/api/images", s.listImagesHandler)
	e.POST("/api/images", s.uploadImageHandler, middleware.BodyLimit(fmt.Sprintf("%dB", s.maxUploadSize)))
	e.DELETE("/api/images/:id", s.deleteImageHandler)
	e.POST("/api/generate", s.generateHandler)
	e.GET("/api/models", s.listModelsHandler)
}

func (s *APIService) listImagesHandler(ctx echo.Context) error {
	items, err := s.coreService.Load(ctx.Request().Context())
	if err != nil {
		slog.Error("listImagesHandler: failed to load images",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load images")
	}
	common.SetNoCache(ctx)
	return ctx.JSON(http.StatusOK, items)
}

func (s *APIService) uploadImageHandler(ctx echo.Context) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		slog.Error("uploadImageHandler: failed to get uploaded file",
			"status", http.StatusBadRequest, "error", err)
		return ctx.String(http.StatusBadRequest, "Failed to get uploaded file")
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("uploadImageHandler: failed to open uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to open uploaded file")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("uploadImageHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	// chunked bodies only hit the body limit while parsing, so bound the part too
	image, err := io.ReadAll(io.LimitReader(src, s.maxUploadSize+1))
	if err != nil {
		slog.Error("uploadImageHandler: failed to read uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to read uploaded file")
	}
	if int64(len(image)) > s.maxUploadSize {
		slog.Warn("uploadImageHandler: uploaded file too large",
			"status", http.StatusRequestEntityTooLarge, "filename", file.Filename,
			"limit", units.HumanSize(float64(s.maxUploadSize)))
		return ctx.String(http.StatusRequestEntityTooLarge, "Uploaded file too large")
	}

	id, err := s.coreService.AddImage(ctx.Request().Context(), image)
	if err != nil {
		slog.Error("uploadImageHandler: failed to store uploaded image",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to store uploaded image")
	}

	slog.Debug("uploadImageHandler: image uploaded", "image_id", id, "filename", file.Filename,
		"size", units.HumanSize(float64(len(image))))
	return ctx.JSON(http.StatusCreated, ImageCreatedResponse{ID: id})
}

func (s *APIService) deleteImageHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	if id == "" {
		slog.Warn("deleteImageHandler: missing image id",
			"status", http.StatusBadRequest,
			"route", "/api/images/:id")
		return ctx.String(http.StatusBadRequest, "Missing image ID")
	}

	if err := s.coreService.Remove(ctx.Request().Context(), id); err != nil {
		slog.Error("deleteImageHandler: failed to delete image",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to delete image")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) generateHandler(ctx echo.Context) error {
	var request GenerateRequest
	if err := common.BindAndValidate(ctx, &request); err != nil {
		return err
	}

	id, err := s.coreService.Generate(ctx.Request().Context(), request.Model, request.Prompt)
	if err != nil {
		status := generationStatus(err)
		slog.Error("generateHandler: failed to generate image",
			"status", status, "model", request.Model, "error", err)
		return ctx.String(status, "Failed to generate image")
	}
	return ctx.JSON(http.StatusCreated, ImageCreatedResponse{ID: id})
}

func generationStatus(err error) int {
	var statusErr *generation.StatusError
	switch {
	case errors.Is(err, generation.ErrEmptyPrompt), errors.Is(err, generation.ErrUnknownModel):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrGenerationDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr),
		errors.Is(err, generation.ErrResponseTooLarge),
		errors.Is(err, generation.ErrEmptyResponseBody):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *APIService) listModelsHandler(ctx echo.Context) error {
	models := s.coreService.Models()
	response := make([]ModelResponse, 0, len(models))
	for _, model := range models {
		response = append(response, ModelResponse{Name: model.Name, Path: model.Path})
	}
	return ctx.JSON(http.StatusOK, response)
}
