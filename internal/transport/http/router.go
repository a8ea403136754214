package http

import (
	"net/http"
	"time"

	"quiz-arena/internal/app"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig holds the transport knobs taken from the server config.
type RouterConfig struct {
	AllowedOrigins   []string
	AnswersPerSecond float64
	AnswerBurst      int
}

// NewRouter wires the arena routes onto a gin engine.
func NewRouter(service *app.ArenaService, verifier IdentityVerifier, logger *zap.Logger, cfg RouterConfig) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	limiters := newLimiterSet(cfg.AnswersPerSecond, cfg.AnswerBurst)
	rooms := NewRoomHandler(service)
	ws := NewWSHandler(service, limiters, logger, originChecker(cfg.AllowedOrigins))
	authenticated := RequireIdentity(verifier, false)

	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	router.GET("/rooms/:code/validate", rooms.Validate)
	router.GET("/rooms/:code/ws", RequireIdentity(verifier, true), ws.ServeWS)

	api := router.Group("/rooms", authenticated)
	{
		api.POST("", rooms.Create)
		api.POST("/:code/join", rooms.Join)
		api.POST("/:code/advance", rooms.Advance)
		api.POST("/:code/answers", RateLimit(limiters), rooms.SubmitAnswer)
		api.GET("/:code/analytics", rooms.Analytics)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// originChecker applies the CORS allow list to websocket upgrades.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
