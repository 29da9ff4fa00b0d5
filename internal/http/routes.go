package http

import (
	"fishka_server/internal/config"
	"fishka_server/internal/game"
	"fishka_server/internal/http/handlers"
	"fishka_server/internal/repository"
	"fishka_server/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *gin.Engine, db *pgxpool.Pool, hub *ws.Hub, games *game.Registry, cfg *config.Config, version string) {
	health := handlers.NewHealthHandler(db, version)
	gamesHandler := handlers.NewGamesHandler(games)
	outcomesHandler := handlers.NewOutcomesHandler(repository.NewOutcomeRepository(db))

	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/games", gamesHandler.List)
	r.GET("/rooms/:code/outcomes", outcomesHandler.ByRoom)

	r.GET("/ws", ws.Handler(hub, cfg.AllowedOrigin))
}
