package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pwanimeetup/referral/internal/auth"
	"github.com/pwanimeetup/referral/internal/config"
	"github.com/pwanimeetup/referral/internal/database"
	"github.com/pwanimeetup/referral/internal/handlers"
	"github.com/pwanimeetup/referral/internal/logging"
	"github.com/pwanimeetup/referral/internal/notify"
	"github.com/pwanimeetup/referral/internal/repository"
	"github.com/pwanimeetup/referral/internal/routes"
	"github.com/pwanimeetup/referral/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg)
	log.Infof("Starting referral service in %s mode", cfg.App.Environment)

	// Initialize database connections
	db, err := database.NewDB(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorf("Error closing database connections: %v", err)
		}
	}()

	// Repositories
	allowlistRepo := repository.NewAllowlistRepository(db.Postgres)
	codeRepo := repository.NewCodeRepository(db.Postgres)
	adminRepo := repository.NewAdminRepository(db.Postgres)

	// Services
	countsCache := service.NewCountsCache(cfg.Referral.CountsTTL)
	notifier := notify.New(cfg.SMTP, log)
	redemptionService := service.NewRedemptionService(allowlistRepo, codeRepo, notifier, countsCache, log)
	analyticsService := service.NewAnalyticsService(codeRepo, allowlistRepo, countsCache)
	adminService := service.NewAdminService(allowlistRepo, codeRepo, countsCache, cfg.Referral.URLBase, log)
	authenticator := auth.NewAuthenticator(adminRepo, log)

	// Handlers
	redemptionHandler := handlers.NewRedemptionHandler(redemptionService, analyticsService, log)
	authHandler := handlers.NewAuthHandler(authenticator, cfg.Session, cfg.App.IsProduction(), log)
	adminHandler := handlers.NewAdminHandler(adminService, analyticsService, log)

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	routes.SetupRoutes(router, redemptionHandler, authHandler, adminHandler)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		hostname, _ := os.Hostname()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "referral", "hostname": hostname})
	})

	// Database health check endpoint
	router.GET("/health/db", func(c *gin.Context) {
		if err := db.Postgres.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "postgres unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "postgres": "connected"})
	})

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Create server with configuration optimized for high concurrency
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second, // Keep connections alive longer
		MaxHeaderBytes: 1 << 20,           // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(router, &http2.Server{
			MaxConcurrentStreams: 1000, // Allow more concurrent streams
		}),
	}

	// Start server in goroutine
	go func() {
		log.Infof("Starting referral service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited gracefully")
}
