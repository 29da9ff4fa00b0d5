package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fishka_server/internal/config"
	"fishka_server/internal/db"
	"fishka_server/internal/engine"
	"fishka_server/internal/game"
	"fishka_server/internal/games/guessword"
	httpServer "fishka_server/internal/http"
	"fishka_server/internal/logger"
	"fishka_server/internal/player"
	"fishka_server/internal/repository"
	"fishka_server/internal/room"
	"fishka_server/internal/store"
	"fishka_server/internal/ws"

	"github.com/gin-gonic/gin"
)

// set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	pool := db.Connect(cfg.DatabaseURL)
	defer pool.Close()

	st := store.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)

	words := repository.NewWordRepository(pool)
	outcomes := repository.NewOutcomeRepository(pool)

	players := player.NewRegistry()
	games := game.NewRegistry()
	if err := games.Register(guessword.New(words)); err != nil {
		logger.Fatal("game registration failed", "error", err)
	}
	rooms := room.NewRegistry(players, games)

	// the scheduler posts timer callbacks back into the hub loop, so
	// every game event runs serialized with the rest
	var hub *ws.Hub
	sched := engine.NewLoopScheduler(func(fn func()) { hub.Post(fn) })
	mgr := engine.NewManager(rooms, players, games, sched, cfg.PauseTimeout)
	mgr.SetPersister(st)
	mgr.SetOutcomeSink(outcomes)

	hub = ws.NewHub(cfg, players, rooms, games, mgr, st)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// rebuild rooms and running games before the loop starts serving
	restoreCtx, cancelRestore := context.WithTimeout(ctx, 15*time.Second)
	hub.RestoreFromStore(restoreCtx)
	cancelRestore()

	go hub.Run(ctx)

	r := gin.Default()
	httpServer.RegisterRoutes(r, pool, hub, games, cfg, version)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server exited")
}
