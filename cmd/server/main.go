package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/neuromotion"
)

var (
	configPath     string
	port           string
	tempDir        string
	allowedOrigins string
	stageTimeout   time.Duration
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the YAML config")
	flag.StringVar(&port, "port", "", "HTTP server port (default: server.port)")
	flag.StringVar(&tempDir, "temp", os.TempDir(), "Directory for uploaded files")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.DurationVar(&stageTimeout, "stage-timeout", 2*time.Hour, "Upper bound on one pipeline request")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Pipeline.LogLvl))
	if port == "" {
		port = cfg.Server.Port
	}

	// Parse allowed origins
	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		for _, o := range strings.Split(allowedOrigins, ",") {
			origins = append(origins, strings.TrimSpace(o))
		}
	}

	opts := []neuromotion.Option{neuromotion.WithConfig(cfg)}
	if cfg.Video.URL != "" {
		opts = append(opts, neuromotion.WithVideoURL(cfg.Video.URL))
	}
	service, err := neuromotion.NewService(opts...)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	server := NewServer(service, &ServerConfig{
		Port:           port,
		DBPath:         cfg.DBPath,
		TempDir:        tempDir,
		EnableCORS:     cfg.Server.EnableCORS,
		AllowedOrigins: origins,
		StageTimeout:   stageTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Start(ctx); err != nil {
		log.Printf("Server failed: %v", err)
	}
}
