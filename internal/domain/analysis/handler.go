package analysis

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthcompanion/api/internal/platform/auth"
	"github.com/healthcompanion/api/internal/platform/llm"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the authenticated analysis endpoint.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/documents/analyze", h.Analyze)
}

// Analyze categorizes and explains a document without storing it.
func (h *Handler) Analyze(c echo.Context) error {
	session := auth.SessionFromContext(c)
	if session == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read file")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read file")
	}

	result, err := h.svc.Analyze(c.Request().Context(), data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, llm.ErrServiceUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "analysis is unavailable")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
	}
	return c.JSON(http.StatusOK, result)
}
