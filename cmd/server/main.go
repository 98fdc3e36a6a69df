package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"flight-arcade/internal/api"
	"flight-arcade/internal/config"
	"flight-arcade/internal/game"
	"flight-arcade/internal/session"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🛩️ ================================")
	log.Println("🛩️  FLIGHT ARCADE - SESSION SERVER")
	log.Println("🛩️ ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	serverCfg := appConfig.Server
	limitsCfg := appConfig.Limits

	log.Printf("🎮 Config: %d FPS, frame every %d, default field %gx%g @%gx",
		serverCfg.FPS, serverCfg.FrameEvery, appConfig.Field.Width, appConfig.Field.Height, appConfig.Field.Ratio)
	log.Printf("🛡️ Resource limits: %d sessions, %d obstacles, %v idle timeout",
		limitsCfg.MaxSessions, limitsCfg.MaxObstacles, limitsCfg.SessionIdleTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start event log
	events := game.NewEventLog()
	if err := events.Start(appConfig.EventLogPath); err != nil {
		log.Printf("⚠️ Event log disabled: %v", err)
	} else if appConfig.EventLogPath != "" {
		log.Printf("📝 Event log: %s", appConfig.EventLogPath)
	}
	api.RegisterEventLog(events)

	// Start debug server
	debugSrv := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       appConfig.Debug.Enabled,
		ListenAddr:    appConfig.Debug.Addr,
		BasicAuthUser: appConfig.Debug.Username,
		BasicAuthPass: appConfig.Debug.Password,
	})

	tuning := appConfig.Tuning.Game()
	sessions := session.NewManager(ctx, session.Config{
		Width:      appConfig.Field.Width,
		Height:     appConfig.Field.Height,
		Ratio:      appConfig.Field.Ratio,
		FPS:        serverCfg.FPS,
		FrameEvery: serverCfg.FrameEvery,
		Tuning:     tuning,
		Limits:     appConfig.GameLimits(),
		Labels:     appConfig.Tuning.Labels,
		FontPath:   appConfig.FontPath,
		Seed:       appConfig.Seed,
		Events:     events,
		Metrics:    api.PromMetrics{},
	}, limitsCfg.MaxSessions)
	go sessions.Run(ctx, time.Minute, limitsCfg.SessionIdleTimeout)

	if serverCfg.AdminToken == "" {
		log.Println("🔒 Admin routes disabled (ARCADE_ADMIN_TOKEN not set)")
	}
	if serverCfg.TokenSecret == "" {
		log.Println("⚠️ ARCADE_TOKEN_SECRET not set, play tokens will not survive a restart")
	}

	play := api.DefaultPlayConfig()
	play.InputsPerSecond = limitsCfg.WSMessagesPerSec

	server := api.NewServer(api.RouterConfig{
		Sessions:   sessions,
		Tokens:     api.NewTokenSigner(serverCfg.TokenSecret),
		AdminToken: serverCfg.AdminToken,
		Labels:     appConfig.Tuning.Labels,
		Tuning:     tuning,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: limitsCfg.RequestsPerSecond,
			Burst:             limitsCfg.RequestBurst,
			CleanupInterval:   api.DefaultRateLimitConfig.CleanupInterval,
		},
		CORSOrigins:   serverCfg.CORSOrigins,
		Play:          play,
		SecureCookies: serverCfg.SecureCookies,
	})

	// Start API server in goroutine
	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Printf("🌐 API server on http://localhost%s", addr)
		log.Printf("🕹️ Play socket: ws://localhost%s/ws/play", addr)

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	if debugSrv != nil {
		debugSrv.Shutdown(shutdownCtx)
	}
	cancel()
	sessions.CloseAll()
	events.Stop()
	log.Println("👋 Goodbye!")
}
