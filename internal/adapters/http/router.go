package http

import (
	"context"

	"github.com/dkeye/Pairline/internal/adapters/signal"
	"github.com/dkeye/Pairline/internal/app/orch"
	"github.com/dkeye/Pairline/internal/config"
	"github.com/dkeye/Pairline/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionName = "PairlineSession"

type handlers struct {
	cfg   *config.Config
	orch  *orch.Orchestrator
	store core.MessageStore
	auth  Authenticator
	ws    *signal.SignalWSController
	ice   []iceServer
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, store core.MessageStore, auth Authenticator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookies := cookie.NewStore([]byte(cfg.Secret))
	cookies.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, cookies))

	h := &handlers{
		cfg:   cfg,
		orch:  o,
		store: store,
		auth:  auth,
		ice:   parseICEServers(cfg.Call.ICEServers),
		ws: signal.NewSignalWSController(o, cfg.WS,
			signal.NewRateLimiter(cfg.Limiter.Events, cfg.Limiter.Interval)),
	}

	r.GET("/health", h.health)
	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) { h.connect(ctx, c) })
	api.GET("/online", h.online)
	api.GET("/users", h.users)
	api.GET("/calls", h.calls)
	api.GET("/ice-servers", h.iceServers)
	api.GET("/messages/:peer", h.history)

	if cfg.Mode == "debug" {
		api.POST("/session", h.login)
		api.DELETE("/session", h.logout)
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
