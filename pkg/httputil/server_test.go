package httputil

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig(8083, "lumen-experiments")

	if cfg.Port != 8083 {
		t.Errorf("Port = %v, want %v", cfg.Port, 8083)
	}
	if cfg.ServiceName != "lumen-experiments" {
		t.Errorf("ServiceName = %v, want %v", cfg.ServiceName, "lumen-experiments")
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, 30*time.Second)
	}
}

func TestNewServer(t *testing.T) {
	cfg := DefaultServerConfig(8083, "test")
	srv := NewServer(cfg, http.NewServeMux(), testLogger())

	if srv.httpServer.Addr != ":8083" {
		t.Errorf("Addr = %v, want %v", srv.httpServer.Addr, ":8083")
	}
	if srv.httpServer.ReadTimeout != cfg.ReadTimeout {
		t.Errorf("ReadTimeout = %v, want %v", srv.httpServer.ReadTimeout, cfg.ReadTimeout)
	}
}

func TestNewRouter_MiddlewareChain(t *testing.T) {
	r := NewRouter(testLogger())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	t.Run("normal request", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
		}
	})

	t.Run("preflight request", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
	})
}

func TestRecovery(t *testing.T) {
	r := NewRouter(testLogger())
	r.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
