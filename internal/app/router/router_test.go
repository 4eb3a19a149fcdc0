package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	emblemhandler "emblem_backend/internal/feature/emblem/transport/handler"
	jwtmw "emblem_backend/internal/platform/jwt"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestNewRouter_Auth(t *testing.T) {
	t.Parallel()

	const secret = "router-secret"
	token, err := jwtmw.NewGenerator(secret, time.Hour).GenerateToken("test")
	if err != nil {
		t.Fatalf("failed to create token: %v", err)
	}

	h := emblemhandler.NewEmblemHandler(nil, nil, nil, nil)

	tests := []struct {
		name           string
		secret         string
		path           string
		method         string
		auth           string
		expectedStatus int
	}{
		{"healthz is public", secret, "/healthz", http.MethodGet, "", http.StatusOK},
		{"readyz is public", secret, "/readyz", http.MethodGet, "", http.StatusOK},
		{"v1 requires token", secret, "/v1/emblem/sessions/abc", http.MethodGet, "", http.StatusUnauthorized},
		{"v1 accepts token", secret, "/v1/emblem/sessions/abc", http.MethodGet, "Bearer " + token, http.StatusNotFound},
		{"v1 open without secret", "", "/v1/emblem/sessions/abc", http.MethodGet, "", http.StatusNotFound},
		{"scrape validates body", "", "/v1/emblem/scrape", http.MethodPost, "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewRouter(h, Options{JWTSecret: tt.secret})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestNewRouter_CORS(t *testing.T) {
	t.Parallel()

	r := NewRouter(emblemhandler.NewEmblemHandler(nil, nil, nil, nil), Options{CORSOrigins: []string{"https://app.example.edu"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/emblem/detect", nil)
	req.Header.Set("Origin", "https://app.example.edu")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.edu" {
		t.Errorf("expected allow origin header, got %q", got)
	}
}

func TestParseOrigins(t *testing.T) {
	t.Parallel()

	got := ParseOrigins(" https://a.edu, ,https://b.edu ")
	if len(got) != 2 || got[0] != "https://a.edu" || got[1] != "https://b.edu" {
		t.Errorf("unexpected origins %v", got)
	}
	if ParseOrigins("") != nil {
		t.Error("expected nil for empty input")
	}
}
