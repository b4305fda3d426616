package records

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthcompanion/api/internal/domain/analysis"
	"github.com/healthcompanion/api/internal/domain/extraction"
	"github.com/healthcompanion/api/internal/platform/auth"
	"github.com/healthcompanion/api/pkg/pagination"
)

type Handler struct {
	svc      *Service
	extract  *extraction.Service
	analyzer *analysis.Service
	logger   zerolog.Logger
}

func NewHandler(svc *Service, extract *extraction.Service, analyzer *analysis.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, extract: extract, analyzer: analyzer, logger: logger}
}

// RegisterRoutes mounts the authenticated document endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/documents/upload", h.Upload)
	api.GET("/documents", h.ListDocuments)
	api.GET("/reports/comparison", h.Comparison)
}

// Upload ingests one document: extract, categorize, build and store records.
func (h *Handler) Upload(c echo.Context) error {
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

	ctx := c.Request().Context()
	mediaType := fileHeader.Header.Get("Content-Type")

	// Classification is advisory. The upload proceeds without it.
	category, _, err := h.analyzer.Categorize(ctx, data, mediaType)
	if err != nil {
		h.logger.Warn().Err(err).Msg("categorization failed, storing uncategorized")
		category = ""
	}

	input := BuildInput{
		FileName:     fileHeader.Filename,
		FileData:     data,
		DocumentType: category,
	}
	if res, err := h.extract.Extract(ctx, data); err != nil {
		h.logger.Warn().Err(err).Msg("extraction failed, storing original only")
		input.ExtractedText = "Text extraction failed"
	} else {
		input.ExtractedText = res.RawText
		for _, obs := range extraction.ParseObservations(res) {
			input.Observations = append(input.Observations, ObservationInput{
				Name:           obs.Name,
				Value:          obs.Value,
				Unit:           obs.Unit,
				ReferenceRange: obs.ReferenceRange,
			})
		}
	}

	result, err := h.svc.BuildAndStore(ctx, session.UserID, input)
	if err != nil {
		return uploadError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success":           true,
		"doc_id":            result.ReportID,
		"category":          category,
		"observation_count": result.ObservationCount,
		"text":              excerpt(input.ExtractedText, 500),
	})
}

func uploadError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrDuplicateDocument):
		return c.JSON(http.StatusConflict, echo.Map{
			"success": false,
			"error":   "duplicate document, not saved",
		})
	default:
		var valErr *ValidationError
		if errors.As(err, &valErr) {
			return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
		}
		var storageErr *StorageError
		if errors.As(err, &storageErr) {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to store document")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
	}
}

// ListDocuments returns the user's document index, most recent first.
func (h *Handler) ListDocuments(c echo.Context) error {
	session := auth.SessionFromContext(c)
	if session == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	params := pagination.FromContext(c)
	docs, err := h.svc.Documents(c.Request().Context(), session.UserID, 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list documents")
	}

	total := len(docs)
	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	items := make([]echo.Map, 0, end-start)
	for _, d := range docs[start:end] {
		date := d.UploadTimestamp
		if len(date) > 10 {
			date = date[:10]
		}
		items = append(items, echo.Map{
			"id":                d.DocumentID,
			"name":              d.FileName,
			"date":              date,
			"document_type":     d.DocumentType,
			"observation_count": d.ObservationCount,
		})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, params.Limit, params.Offset))
}

// Comparison compares the user's two most recent reports.
func (h *Handler) Comparison(c echo.Context) error {
	session := auth.SessionFromContext(c)
	if session == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	cmp, err := h.svc.CompareLatest(c.Request().Context(), session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotEnoughHistory) {
			return c.JSON(http.StatusOK, echo.Map{
				"available": false,
				"message":   "not enough report history to compare",
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "comparison failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"available":  true,
		"comparison": cmp,
	})
}
