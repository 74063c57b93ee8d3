package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callhub/internal/auth"
	"callhub/internal/calls"
	"callhub/internal/config"
	"callhub/internal/gateway"
	"callhub/internal/httpapi"
	"callhub/internal/presence"
	"callhub/internal/signaling"
	"callhub/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func testRouter(t *testing.T, devTokens bool) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := utils.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	reg := presence.NewRegistry(log, nil, nil)
	ctrl := signaling.NewController(signaling.Deps{Presence: reg, Recorder: calls.NewRecorder(calls.NewMemoryRepo(), calls.RecorderConfig{}, log, nil), Log: log}, signaling.Policy{})
	gw := gateway.New(gateway.Deps{
		Identifier: am,
		Lifecycle:  gateway.NewLifecycle(reg, ctrl, log),
		Dispatcher: signaling.NewDispatcher(ctrl),
		Log:        log,
	}, gateway.Config{})

	r := gin.New()
	registerRoutes(r, routeDeps{
		handlers:  httpapi.Handlers{Auth: am, History: calls.NewService(calls.NewMemoryRepo()), Presence: reg, Calls: ctrl},
		authMW:    auth.RequireAccessToken(am),
		gateway:   gw,
		db:        db,
		metrics:   promhttp.Handler(),
		devTokens: devTokens,
	})
	return r, am
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	r, _ := testRouter(t, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", w.Code)
	}
}

func TestRoutes_TokenEndpointOnlyInDev(t *testing.T) {
	body := `{"user_id":"alice"}`

	r, _ := testRouter(t, false)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/auth/token", strings.NewReader(body)))
	if w.Code == http.StatusOK {
		t.Fatalf("token endpoint must not be mounted outside dev")
	}

	r, _ = testRouter(t, true)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/auth/token", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRoutes_ProtectedAndAdmin(t *testing.T) {
	r, am := testRouter(t, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	user, _ := am.IssuePair(time.Now(), "alice", "user")
	admin, _ := am.IssuePair(time.Now(), "root", "admin")

	req := httptest.NewRequest(http.MethodGet, "/v1/calls/history", nil)
	req.Header.Set("Authorization", "Bearer "+user.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for history, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/calls/active", nil)
	req.Header.Set("Authorization", "Bearer "+user.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user on admin route, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/calls/active", nil)
	req.Header.Set("Authorization", "Bearer "+admin.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", w.Code)
	}
}
