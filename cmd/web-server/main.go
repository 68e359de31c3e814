// Intercept simulator web server
// REST API for engagements, batches and saved scenarios, plus a WebSocket
// stream of recorded engagement frames.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/intercept-sim/internal/auth"
	"github.com/unklstewy/intercept-sim/internal/db"
	"github.com/unklstewy/intercept-sim/pkg/config"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	port       = flag.String("port", "", "HTTP server port (overrides config)")
)

func main() {
	flag.Parse()

	log.Println("🚀 Starting intercept-sim web server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if err := cfg.Scenario.Validate(); err != nil {
		log.Fatalf("Default scenario is invalid: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.ReconnectWithRetry(ctx, cfg.Database, db.DefaultRetryConfig())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		log.Printf("Warning: schema initialization failed: %v", err)
	}

	authSvc := auth.NewService(auth.Config{
		JWTSecret:     cfg.Server.JWTSecret,
		TokenDuration: time.Duration(cfg.Server.TokenHours) * time.Hour,
	})

	users := db.NewUserRepository(database)
	if err := ensureAdmin(ctx, authSvc, users); err != nil {
		log.Printf("Warning: could not create admin user: %v", err)
	}

	srv := NewServer(ctx, cfg, Stores{
		Users:       users,
		Engagements: db.NewEngagementRepository(database),
		Batches:     db.NewBatchRepository(database),
		Scenarios:   db.NewScenarioRepository(database),
		Healthy:     func(ctx context.Context) bool { return db.HealthCheck(ctx, database) },
	}, authSvc)

	go cleanupLoop(ctx, database)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("📡 Server listening on http://%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("👋 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	srv.Wait()

	log.Println("✅ Server stopped")
}

// ensureAdmin creates an "admin" account when INTERCEPT_SIM_ADMIN_PASSWORD
// is set and no such user exists yet.
func ensureAdmin(ctx context.Context, authSvc *auth.Service, users *db.UserRepository) error {
	password := os.Getenv("INTERCEPT_SIM_ADMIN_PASSWORD")
	if password == "" {
		return nil
	}
	if _, err := users.GetByUsername(ctx, "admin"); err == nil {
		return nil
	} else if !errors.Is(err, db.ErrUserNotFound) {
		return err
	}

	hash, err := authSvc.HashPassword(password)
	if err != nil {
		return err
	}
	err = users.Create(ctx, &db.User{
		Username:     "admin",
		Email:        "admin@localhost",
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		IsActive:     true,
	})
	if err == nil {
		log.Println("👤 Created admin user")
	}
	return err
}

// cleanupLoop prunes results older than a week once an hour.
func cleanupLoop(ctx context.Context, database *db.DB) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := db.WithRetry(ctx, db.DefaultRetryConfig(), func() error {
				n, err := database.CleanupOldData(ctx, 7*24*time.Hour)
				if err == nil && n > 0 {
					log.Printf("🧹 Removed %d old engagements/batches", n)
				}
				return err
			})
			if err != nil {
				log.Printf("Cleanup failed: %v", err)
			}
		}
	}
}
