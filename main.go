package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"indiastreamz/api"
	"indiastreamz/config"
	"indiastreamz/handlers"
	"indiastreamz/services/cache"
	"indiastreamz/services/metadata"
	"indiastreamz/services/scrapeloop"
	"indiastreamz/services/scraper"
)

const version = "1.0.0"

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	scrapeOnStart := flag.Bool("scrape", false, "force a scrape cycle at startup even when the cache is warm")
	flag.Parse()

	configPath := os.Getenv("INDIASTREAMZ_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}
	if settings.Source.BaseURL == "" {
		log.Fatalf("source.baseUrl is not configured in %s", configPath)
	}

	store, err := cache.NewStore(afero.NewOsFs(), settings.Cache.Directory)
	if err != nil {
		log.Fatalf("failed to init cache store: %v", err)
	}

	httpc := &http.Client{Timeout: time.Duration(settings.Source.FetchTimeoutSec) * time.Second}
	source := scraper.New(settings.Source.BaseURL, httpc, settings.Source.Retries)

	enricher := metadata.NewService(
		settings.Metadata.TMDBAPIKey,
		settings.Metadata.Language,
		nil,
		settings.Metadata.SearchConcurrency,
		time.Duration(settings.Metadata.VariationDelayMs)*time.Millisecond,
	)
	if !enricher.IsConfigured() {
		log.Println("Warning: no TMDB API key configured, catalog entries will carry scraped metadata only")
	}

	orchestrator := scrapeloop.NewService(source, enricher, store, scrapeloop.Options{
		Interval:  time.Duration(settings.Source.ScrapeIntervalHours) * time.Hour,
		ItemDelay: time.Duration(settings.Source.ItemDelayMs) * time.Millisecond,
		MaxItems:  settings.Source.MaxItems,
	})

	addonHandler := handlers.NewAddonHandler(store, settings.Addon, version)
	scrapeHandler := handlers.NewScrapeHandler(orchestrator)

	r := mux.NewRouter()
	api.Register(r, addonHandler, scrapeHandler)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if err := orchestrator.Start(rootCtx); err != nil {
		log.Fatalf("failed to start scrape scheduler: %v", err)
	}
	if *scrapeOnStart {
		if _, err := orchestrator.TriggerAsync(false); err != nil {
			log.Printf("startup scrape: %v", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	log.Printf("IndiaStreamz %s serving on %s", version, addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	rootCancel()
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
