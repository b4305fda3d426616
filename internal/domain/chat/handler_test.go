package chat

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
	"github.com/healthcompanion/api/internal/platform/recordstore"
)

func newChatAPI(t *testing.T, model *fakeModel) (*echo.Echo, string) {
	t.Helper()
	sessions := auth.NewManager("test-secret", time.Hour)
	svc := NewService(recordstore.NewMemStore(), model, false, zerolog.Nop())

	e := echo.New()
	api := e.Group("/api/v1", auth.Middleware(sessions))
	NewHandler(svc).RegisterRoutes(api)

	token, err := sessions.Issue(auth.Session{UserID: "alice"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return e, token
}

func TestChatEndpoint(t *testing.T) {
	model := &fakeModel{}
	e, token := newChatAPI(t, model)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"message":"how am I doing?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response != "answer" {
		t.Errorf("expected answer, got %s", resp.Response)
	}
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	e, token := newChatAPI(t, &fakeModel{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestChatEndpointRequiresAuth(t *testing.T) {
	e, _ := newChatAPI(t, &fakeModel{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
