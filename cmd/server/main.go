package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment variables
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen address")
	flag.StringVar(&cfg.Store.Driver, "store", cfg.Store.Driver, "Data store driver (redis or badger)")
	flag.StringVar(&cfg.Store.RedisAddr, "redis", cfg.Store.RedisAddr, "Redis address")
	flag.StringVar(&cfg.SLO.Calculator, "sli", cfg.SLO.Calculator, "SLI calculator (static or window)")
	flag.StringVar(&cfg.SLO.ObjectivesFile, "objectives", cfg.SLO.ObjectivesFile, "SLO objectives file (YAML or TOML)")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	srv, err := server.New(cfg, server.Options{})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
