package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dkeye/Pairline/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pion/stun/v3"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "pairline"})
}

func (h *handlers) connect(ctx context.Context, c *gin.Context) {
	uid, err := h.auth.Authenticate(c)
	if err != nil {
		log.Debug().Err(err).Str("module", "adapters.http").Msg("ws rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	h.ws.HandleSignal(ctx, c, uid)
}

func (h *handlers) online(c *gin.Context) {
	c.JSON(http.StatusOK, domain.UsersOnline{Users: h.orch.Registry.Snapshot()})
}

func (h *handlers) users(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.orch.Registry.Directory()})
}

func (h *handlers) calls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": h.orch.Calls.Sessions()})
}

type iceServer struct {
	URLs []string `json:"urls"`
}

// parseICEServers keeps the configured STUN/TURN URLs that parse, in the
// shape RTCPeerConnection expects.
func parseICEServers(urls []string) []iceServer {
	out := make([]iceServer, 0, len(urls))
	for _, raw := range urls {
		if _, err := stun.ParseURI(raw); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("url", raw).Msg("skipping ice server")
			continue
		}
		out = append(out, iceServer{URLs: []string{raw}})
	}
	return out
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.ice})
}

func (h *handlers) history(c *gin.Context) {
	uid, err := h.auth.Authenticate(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	peer, err := domain.ParseUserID(c.Param("peer"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	ctx := c.Request.Context()
	if h.cfg.Store.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Store.Timeout)
		defer cancel()
	}

	msgs, err := h.store.History(ctx, uid, peer, limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("uid", string(uid)).Msg("history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store_failed"})
		return
	}
	if _, err := h.store.MarkRead(ctx, uid, peer); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("uid", string(uid)).Msg("mark read")
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type loginRequest struct {
	UserID string `json:"userId"`
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	uid, err := domain.ParseUserID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionUserKey, string(uid))
	if err := s.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": uid})
}

func (h *handlers) logout(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = s.Save()
	c.Status(http.StatusNoContent)
}
