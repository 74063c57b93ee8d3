package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewTo_LevelByEnv(t *testing.T) {
	var buf bytes.Buffer
	NewTo(&buf, "production").Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug must be off in production, got %q", buf.String())
	}

	NewTo(&buf, "dev").Debug("shown", "call_id", "c-1")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["service"] != "callhub" || line["call_id"] != "c-1" || line["env"] != "dev" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Middleware(NewTo(&buf, "production")))
	r.GET("/x", func(c *gin.Context) {
		FromGin(c).Info("inside")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "rid-1")
	r.ServeHTTP(w, req)

	if got := w.Header().Get(headerRequestID); got != "rid-1" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	if strings.Count(buf.String(), `"request_id":"rid-1"`) != 2 {
		t.Fatalf("expected both lines tagged, got %q", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected generated request id")
	}
}
