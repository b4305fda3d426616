package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthcompanion/api/internal/platform/auth"
	"github.com/healthcompanion/api/internal/platform/objectstore"
	"github.com/healthcompanion/api/internal/platform/recordstore"
)

func newAPI() *echo.Echo {
	svc := NewService(objectstore.NewMemStore(), recordstore.NewMemStore(),
		auth.NewManager("test-secret", time.Hour), zerolog.Nop())
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLoginEndpoints(t *testing.T) {
	e := newAPI()

	rec := postJSON(e, "/api/v1/auth/register",
		`{"username":"alice","email":"alice@example.com","password":"pw"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(e, "/api/v1/auth/login", `{"username":"alice","password":"pw"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		User    struct {
			PatientID string `json:"patient_id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Token == "" {
		t.Errorf("unexpected login response: %+v", resp)
	}
	if resp.User.PatientID != "patient-alice" {
		t.Errorf("unexpected patient id: %s", resp.User.PatientID)
	}
}

func TestRegisterConflict(t *testing.T) {
	e := newAPI()

	postJSON(e, "/api/v1/auth/register", `{"username":"alice","password":"pw"}`)
	rec := postJSON(e, "/api/v1/auth/register", `{"username":"alice","password":"pw"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newAPI()

	postJSON(e, "/api/v1/auth/register", `{"username":"alice","password":"pw"}`)
	rec := postJSON(e, "/api/v1/auth/login", `{"username":"alice","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRegisterValidationError(t *testing.T) {
	e := newAPI()

	rec := postJSON(e, "/api/v1/auth/register", `{"username":"","password":"pw"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
