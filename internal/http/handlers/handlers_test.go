package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/lapor-kita/backend/internal/db"
)

func testRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/reports", h.CreateReport)
	r.GET("/api/jobs/:id", h.JobStatus)
	return r
}

func TestCreateReportRejectsMalformedBody(t *testing.T) {
	h := &Handler{Validator: validator.New(), Logger: zerolog.Nop()}
	r := testRouter(h)

	req, _ := http.NewRequest(http.MethodPost, "/api/reports", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateReportRejectsBadThreadID(t *testing.T) {
	h := &Handler{Validator: validator.New(), Logger: zerolog.Nop()}
	r := testRouter(h)

	body := `{"thread_id": "not-a-uuid", "confidence": 0.9}`
	req, _ := http.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateReportRejectsOutOfRangeConfidence(t *testing.T) {
	h := &Handler{Validator: validator.New(), Logger: zerolog.Nop()}
	r := testRouter(h)

	body := `{"thread_id": "4a1f6f2e-3f7b-4a54-9dd0-6f0cb3a8ff01", "confidence": 1.5}`
	req, _ := http.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestJobStatusRejectsBadID(t *testing.T) {
	h := &Handler{Validator: validator.New(), Logger: zerolog.Nop()}
	r := testRouter(h)

	req, _ := http.NewRequest(http.MethodGet, "/api/jobs/abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHealthzIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := db.New(context.Background(), url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	defer store.Close()

	h := &Handler{Store: store, Logger: zerolog.Nop()}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Healthz)

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
