package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpmiddleware "github.com/wolfman30/medspa-pipeline/internal/http/middleware"
	"github.com/wolfman30/medspa-pipeline/internal/leads"
	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

const testSecret = "router-test-secret"

func newTestRouter(t *testing.T, ready func(context.Context) error) http.Handler {
	t.Helper()

	logger := logging.Discard()
	leadRepo := leads.NewInMemoryRepository(pipeline.StageNew)
	leadsHandler := leads.NewHandler(leadRepo, pipeline.DefaultBoardConfig(), logger)

	return New(&Config{
		Logger:       logger,
		LeadsHandler: leadsHandler,
		AuthSecret:   testSecret,
		RateLimiter:  httpmiddleware.NewMemoryLimiter(100, 100),
		ReadyCheck:   ready,
	})
}

func staffToken(t *testing.T) string {
	t.Helper()
	token, err := httpmiddleware.SignToken(testSecret, "org-test", "staff-1", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterReadyEndpoint(t *testing.T) {
	router := newTestRouter(t, func(context.Context) error { return errors.New("db down") })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestRouterRequiresStaffToken(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, APIPrefix+"/pipeline/stats", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterLeadsWebEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	payload := leads.CreateLeadRequest{
		Name:    "Router Test",
		Email:   "router@example.com",
		Phone:   "+12223334444",
		Message: "Interested in services",
		Source:  "test",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, APIPrefix+"/leads/web", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+staffToken(t))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}

	var created pipeline.Lead
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if created.Email != payload.Email {
		t.Errorf("expected email %s, got %s", payload.Email, created.Email)
	}
	if created.OrgID != "org-test" {
		t.Errorf("expected org from token, got %s", created.OrgID)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected request id header")
	}
}

func TestRouterMetricsOptional(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a metrics handler, got %d", rr.Code)
	}
}
