package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthcompanion/api/internal/domain/records"
	"github.com/healthcompanion/api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the unauthenticated account endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := h.svc.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{"success": true})
	case errors.Is(err, ErrUsernameTaken):
		return c.JSON(http.StatusConflict, echo.Map{"success": false, "error": "username already exists"})
	default:
		var valErr *records.ValidationError
		if errors.As(err, &valErr) {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": valErr.Error()})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	token, session, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid credentials"})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"token":   token,
		"user": echo.Map{
			"user_id":    session.UserID,
			"username":   session.Username,
			"patient_id": session.PatientID,
		},
	})
}
