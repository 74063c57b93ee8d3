package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"callhub/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithRole(role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serveWithRole(RoleAdmin, RoleUser); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_UserDeniedAdminRoute(t *testing.T) {
	if code := serveWithRole(RoleUser, RoleAdmin); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	if code := serveWithRole("", RoleUser); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestIsKnownRole(t *testing.T) {
	if !IsKnownRole(RoleUser) || !IsKnownRole(RoleAdmin) || IsKnownRole("super_admin") {
		t.Fatalf("unexpected role set")
	}
}
