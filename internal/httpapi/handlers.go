package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"callhub/internal/auth"
	"callhub/internal/calls"
	"callhub/internal/presence"
	"callhub/internal/rbac"
	"callhub/internal/signaling"
	"callhub/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	History  *calls.Service
	Presence *presence.Registry
	Calls    *signaling.Controller
}

// --- Auth ---

type tokenRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IssueToken issues a JWT token pair for any user id.
//
// NOTE: Development only. Production tokens come from the identity system.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleUser
	}
	if req.UserID == "" || !rbac.IsKnownRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and a valid role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role, "online": h.Presence != nil && h.Presence.IsOnline(uid)})
}

// --- Call history ---

func (h Handlers) CallHistory(c *gin.Context) {
	uid, ok := h.historyUser(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	recs, err := h.History.History(c.Request.Context(), uid, limit)
	if err != nil {
		h.historyError(c, err)
		return
	}
	if recs == nil {
		recs = []calls.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs})
}

func (h Handlers) MissedCount(c *gin.Context) {
	uid, ok := h.historyUser(c)
	if !ok {
		return
	}
	n, err := h.History.MissedCount(c.Request.Context(), uid)
	if err != nil {
		h.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// CallSummary aggregates the caller's history. from and to are optional
// RFC3339 bounds; the default window is the last 30 days.
func (h Handlers) CallSummary(c *gin.Context) {
	uid, ok := h.historyUser(c)
	if !ok {
		return
	}
	var rng calls.TimeRange
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		v := c.Query(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": p.key + " must be RFC3339"})
			return
		}
		*p.dst = t
	}
	if rng.To.IsZero() {
		rng.To = time.Now().UTC()
	}
	if rng.From.IsZero() {
		rng.From = rng.To.AddDate(0, 0, -30)
	}
	sum, err := h.History.Summary(c.Request.Context(), calls.SummaryRequest{UserID: uid, Range: rng})
	if err != nil {
		h.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) historyUser(c *gin.Context) (string, bool) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history not configured"})
		return "", false
	}
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", false
	}
	return uid, true
}

func (h Handlers) historyError(c *gin.Context, err error) {
	if errors.Is(err, calls.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.FromGin(c).Error("history lookup failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
}

// --- Presence ---

func (h Handlers) OnlineUsers(c *gin.Context) {
	if h.Presence == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "presence not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": h.Presence.Online()})
}

func (h Handlers) UserPresence(c *gin.Context) {
	if h.Presence == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "presence not configured"})
		return
	}
	uid := c.Param("user_id")
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "online": h.Presence.IsOnline(uid)})
}

// --- Admin ---

// ActiveCalls lists calls that are ringing or connected.
// RBAC: admin.
func (h Handlers) ActiveCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	active := h.Calls.ActiveCalls()
	if active == nil {
		active = []calls.Call{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": active, "count": len(active)})
}
