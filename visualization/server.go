package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/handlers"

	"quotescraper/internal/api"
	"quotescraper/internal/pipeline"
	"quotescraper/internal/utils"
)

func main() {
	configPath := flag.String("config", utils.EnvOrString("CONFIG_PATH", "configs/config.yaml"), "Path to the YAML configuration")
	addr := flag.String("addr", ":"+utils.EnvOrString("PORT", "8080"), "Listen address")
	staticDir := flag.String("static", "static", "Directory with the dashboard files")
	flag.Parse()

	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := utils.NewLogger(config.Log.Dir, config.Log.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	p, err := pipeline.New(config, logger)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline: %v", err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.PreflightCheck(ctx); err != nil {
		logger.Fatal("Preflight check failed: %v", err)
	}

	s := api.NewServer(p, logger)
	router := s.Router()

	// Serve the dashboard, if present
	if _, err := os.Stat(*staticDir); err == nil {
		fs := http.FileServer(http.Dir(*staticDir))
		router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", fs))
		router.Path("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(*staticDir, "index.html"))
		})
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handlers.LoggingHandler(os.Stdout, s.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed: %v", err)
		}
	}()

	logger.Info("Starting server on %s (artifacts in %s)", *addr, p.Writer().Dir())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed: %v", err)
	}
}
