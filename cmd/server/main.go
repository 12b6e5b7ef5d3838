package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/dice-odds/api/internal/auth"
	"github.com/freeeve/dice-odds/api/internal/config"
	"github.com/freeeve/dice-odds/api/internal/handler"
	"github.com/freeeve/dice-odds/api/internal/logger"
	"github.com/freeeve/dice-odds/api/internal/middleware"
	"github.com/freeeve/dice-odds/api/internal/repository/postgres"
	redisrepo "github.com/freeeve/dice-odds/api/internal/repository/redis"
	"github.com/freeeve/dice-odds/api/internal/service"
	"github.com/freeeve/dice-odds/api/pkg/dice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(false)
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Init(cfg.DevMode)
	log.Info().Str("dice", cfg.RoundConfig().String()).Str("rng", cfg.RNGKind).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL, cfg.SessionTTL, cfg.DistributionTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Repos
	userRepo := postgres.NewUserRepo(db)
	battleRepo := postgres.NewBattleRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	googleOAuth := auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	engine := dice.NewEngine()
	limits := service.Limits{
		MaxUnits:             cfg.MaxBattleUnits,
		MaxFaces:             cfg.MaxDiceFaces,
		MaxDicePerSide:       cfg.MaxDicePerSide,
		MaxRoundPermutations: cfg.MaxRoundPermutations,
	}
	oddsSvc := service.NewOddsService(engine, redisClient, cfg.RoundConfig(), cfg.BalanceParams(), limits)
	battleSvc := service.NewBattleService(oddsSvc, redisClient, battleRepo, cfg.RNGConfig(), wsHub)
	janitor := service.NewEngineJanitor(engine, cfg.EngineMaxBattles, cfg.EngineSweepInterval)

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo, cfg.DevMode)
	userHandler := handler.NewUserHandler(userRepo)
	oddsHandler := handler.NewOddsHandler(oddsSvc)
	battleHandler := handler.NewBattleHandler(battleSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, battleSvc)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("POST /auth/dev", authHandler.DevLogin)

	// Odds (public)
	mux.HandleFunc("GET /api/v1/odds/round", oddsHandler.Round)
	mux.HandleFunc("GET /api/v1/odds/battle", oddsHandler.Battle)
	mux.HandleFunc("GET /api/v1/odds/winchance", oddsHandler.WinChance)
	mux.HandleFunc("GET /api/v1/odds/ideal", oddsHandler.Ideal)
	mux.HandleFunc("GET /api/v1/odds/grid", oddsHandler.Grid)
	mux.HandleFunc("GET /api/v1/odds/stats", oddsHandler.Stats)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("POST /battles", battleHandler.CreateBattle)
	api.HandleFunc("GET /battles", battleHandler.ListBattles)
	api.HandleFunc("GET /battles/history", battleHandler.History)
	api.HandleFunc("GET /battles/stats", battleHandler.Stats)
	api.HandleFunc("GET /battles/{id}", battleHandler.GetBattle)
	api.HandleFunc("POST /battles/{id}/round", battleHandler.Round)
	api.HandleFunc("POST /battles/{id}/blitz", battleHandler.Blitz)
	api.HandleFunc("POST /battles/{id}/reset", battleHandler.Reset)
	api.HandleFunc("DELETE /battles/{id}", battleHandler.DeleteBattle)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)
	mux.HandleFunc("GET /ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Recover, middleware.Logger, middleware.CORS(cfg.CORSOrigins), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go janitor.Start(ctx)

	// Build the default win chance table before the first request needs it.
	go func() {
		start := time.Now()
		if _, err := engine.WinChances(cfg.WinTableSize, cfg.RoundConfig(), nil); err != nil {
			log.Error().Err(err).Msg("Failed to build win chance table")
			return
		}
		log.Info().Int("size", cfg.WinTableSize).Dur("took", time.Since(start)).Msg("Win chance table ready")
	}()

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
