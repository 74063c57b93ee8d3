package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callhub/internal/auth"
	"callhub/internal/calls"
	"callhub/internal/config"
	"callhub/internal/presence"
	"callhub/internal/presence/presencetest"
	"callhub/internal/rbac"
	"callhub/internal/signaling"

	"github.com/gin-gonic/gin"
)

func testHandlers(t *testing.T) (Handlers, *calls.MemoryRepo) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	repo := calls.NewMemoryRepo()
	reg := presence.NewRegistry(log, nil, nil)
	ctrl := signaling.NewController(signaling.Deps{Presence: reg, Recorder: calls.NewRecorder(repo, calls.RecorderConfig{}, log, nil), Log: log}, signaling.Policy{})
	return Handlers{Auth: am, History: calls.NewService(repo), Presence: reg, Calls: ctrl}, repo
}

func withIdentity(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), userID, role))
		c.Next()
	}
}

func serve(r *gin.Engine, method, target string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestIssueToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := testHandlers(t)
	r := gin.New()
	r.POST("/token", h.IssueToken)

	w := serve(r, http.MethodPost, "/token", []byte(`{"user_id":"alice"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out map[string]string
	decodeBody(t, w, &out)
	claims, err := h.Auth.Verify(out["access_token"], auth.TokenTypeAccess, time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "alice" || claims.Role != rbac.RoleUser {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if w := serve(r, http.MethodPost, "/token", []byte(`{"user_id":"alice","role":"root"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/token", []byte(`nope`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", w.Code)
	}
}

func TestCallHistoryAndMissedCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, repo := testHandlers(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for i, rec := range []calls.Record{
		{ID: "r1", Caller: "bob", Receiver: "alice", Type: calls.TypeAudio, Status: calls.OutcomeMissed, CreatedAt: now.Add(-3 * time.Minute)},
		{ID: "r2", Caller: "alice", Receiver: "bob", Type: calls.TypeVideo, Status: calls.OutcomeAnswered, DurationSeconds: 42, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "r3", Caller: "carol", Receiver: "alice", Type: calls.TypeAudio, Status: calls.OutcomeMissed, CreatedAt: now.Add(-time.Minute)},
	} {
		if err := repo.Append(ctx, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	r := gin.New()
	r.Use(withIdentity("alice", rbac.RoleUser))
	r.GET("/history", h.CallHistory)
	r.GET("/missed", h.MissedCount)
	r.GET("/summary", h.CallSummary)

	w := serve(r, http.MethodGet, "/history?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var hist struct {
		Calls []calls.Record `json:"calls"`
	}
	decodeBody(t, w, &hist)
	if len(hist.Calls) != 2 || hist.Calls[0].ID != "r3" || hist.Calls[1].ID != "r2" {
		t.Fatalf("unexpected history %+v", hist.Calls)
	}

	if w := serve(r, http.MethodGet, "/history?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}

	w = serve(r, http.MethodGet, "/missed", nil)
	var missed struct {
		Count int `json:"count"`
	}
	decodeBody(t, w, &missed)
	if missed.Count != 2 {
		t.Fatalf("expected 2 missed, got %d", missed.Count)
	}

	w = serve(r, http.MethodGet, "/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sum calls.Summary
	decodeBody(t, w, &sum)
	if sum.TotalCalls != 3 || sum.AnsweredCalls != 1 || sum.MissedCalls != 2 || sum.TotalDurationSeconds != 42 || sum.OutgoingCalls != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	if w := serve(r, http.MethodGet, "/summary?from=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", w.Code)
	}
	to := now.Add(-time.Hour).Format(time.RFC3339)
	from := now.Add(-time.Minute).Format(time.RFC3339)
	if w := serve(r, http.MethodGet, "/summary?from="+from+"&to="+to, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", w.Code)
	}
}

func TestPresenceAndActiveCalls(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := testHandlers(t)
	h.Presence.Register("bob", presencetest.NewChannel())
	h.Presence.Register("alice", presencetest.NewChannel())
	if err := h.Calls.Initiate(context.Background(), "alice", signaling.InitiateRequest{To: "bob", Type: calls.TypeAudio, CallID: "c-1"}); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	r := gin.New()
	r.GET("/presence/online", h.OnlineUsers)
	r.GET("/presence/:user_id", h.UserPresence)
	r.GET("/admin/active", withIdentity("root", rbac.RoleAdmin), rbac.RequireAnyRole(rbac.RoleAdmin), h.ActiveCalls)
	r.GET("/user/active", withIdentity("bob", rbac.RoleUser), rbac.RequireAnyRole(rbac.RoleAdmin), h.ActiveCalls)

	var online struct {
		Users []string `json:"users"`
	}
	decodeBody(t, serve(r, http.MethodGet, "/presence/online", nil), &online)
	if len(online.Users) != 2 || online.Users[0] != "alice" || online.Users[1] != "bob" {
		t.Fatalf("unexpected online users %v", online.Users)
	}

	var one struct {
		UserID string `json:"user_id"`
		Online bool   `json:"online"`
	}
	decodeBody(t, serve(r, http.MethodGet, "/presence/carol", nil), &one)
	if one.UserID != "carol" || one.Online {
		t.Fatalf("unexpected presence %+v", one)
	}

	w := serve(r, http.MethodGet, "/admin/active", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var active struct {
		Calls []calls.Call `json:"calls"`
		Count int          `json:"count"`
	}
	decodeBody(t, w, &active)
	if active.Count != 1 || active.Calls[0].ID != "c-1" || active.Calls[0].Status != calls.StatusRinging {
		t.Fatalf("unexpected active calls %+v", active)
	}

	if w := serve(r, http.MethodGet, "/user/active", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", w.Code)
	}
}
