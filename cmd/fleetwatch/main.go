// Command fleetwatch runs the fleet dashboard backend.
//
// It connects to the game server's admin API, serves the playback and
// command endpoints the dashboard UI consumes, polls the live position
// feed, and keeps a local audit database.
//
// Usage:
//
//	go run ./cmd/fleetwatch [flags]
//
// Flags:
//
//	-listen     HTTP listen address (default: :8080)
//	-db         Path to the SQLite audit database (default: fleetwatch.db)
//	-config     Optional JSON config file
//	-backend    Fleet backend base URL (overrides config)
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sudotools/fleetwatch/internal/api"
	"github.com/sudotools/fleetwatch/internal/config"
	"github.com/sudotools/fleetwatch/internal/db"
	"github.com/sudotools/fleetwatch/internal/fleetapi"
	"github.com/sudotools/fleetwatch/internal/live"
	"github.com/sudotools/fleetwatch/internal/playback"
	"github.com/sudotools/fleetwatch/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbPath     = flag.String("db", "fleetwatch.db", "Path to SQLite audit database")
	configPath = flag.String("config", "", "Path to JSON config file")
	backendURL = flag.String("backend", "", "Fleet backend base URL (overrides config)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	baseURL := cfg.GetBackendURL()
	if *backendURL != "" {
		baseURL = *backendURL
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	client := fleetapi.NewClient(baseURL, cfg.GetRequestTimeout())
	session := playback.NewSession(client, cfg.GetMaxPointsPerTrack(), cfg.GetTickInterval(), log.Default())

	hub := live.NewHub(log.Default())
	poller := live.NewPoller(live.PollerConfig{
		Fetcher:  client,
		Hub:      hub,
		Interval: cfg.GetLivePollInterval(),
		Seen: func(u live.EntityUpdate) error {
			return database.UpsertEntity(db.EntityRecord{
				EntityID:          u.EntityID,
				Kind:              u.Kind,
				DisplayName:       u.DisplayName,
				LastSeenUnixNanos: u.LastSeenUnixNanos,
			})
		},
	})

	log.Printf("Starting fleetwatch %s (%s) against backend %s", version.Version, version.GitSHA, baseURL)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// playback clock loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		session.Clock.Run(ctx)
		log.Print("clock routine terminated")
	}()

	// live position poller
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
		log.Print("live poller terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(session, client, database, poller, hub, cfg).ServeMux()
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Print("fleetwatch stopped")
}
