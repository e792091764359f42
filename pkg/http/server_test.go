package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type panicHandler struct{}

func (panicHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("nothing here"))
	})
}

func TestServer_Routes(t *testing.T) {
	s := NewServer(nil, []Handler{panicHandler{}})

	tests := []struct {
		path     string
		want     int
		contains string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/metrics", http.StatusOK, "http_requests_total"},
		{"/boom", http.StatusInternalServerError, "Internal Server Error"},
		{"/missing", http.StatusNotFound, "ERR_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body missing %q: %s", tt.contains, rec.Body.String())
			}
		})
	}
}

func TestServer_Options(t *testing.T) {
	s := NewServer(nil, nil, WithPort("9090"))
	if s.config.Port != "9090" {
		t.Errorf("expected port 9090, got %s", s.config.Port)
	}
	if s.config.Host != "0.0.0.0" || s.config.WriteTimeout != 120*time.Second {
		t.Errorf("unexpected defaults %+v", s.config)
	}
}
