package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"botpipe/internal/app"
	"botpipe/pkg/banner"
	"botpipe/pkg/config"
	"botpipe/pkg/logger"
)

// version is set via ldflags during release builds.
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	var (
		addrFlag = flag.String("addr", "", "listen address (host:port), overrides config")
		dbFlag   = flag.String("db", "", "pebble database path, overrides config")
		cfgFlag  = flag.String("config", os.Getenv("BOTPIPE_CONFIG"), "path to config file")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgFlag)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// flags win over file and env
	if *addrFlag != "" {
		if host, port, err := net.SplitHostPort(*addrFlag); err == nil {
			cfg.Server.Address = host
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = p
			}
		}
	}
	if *dbFlag != "" {
		cfg.Storage.DBPath = *dbFlag
	}

	logger.InitWithLevel(cfg.Logging.Level)
	banner.Print(cfg.Addr(), cfg.Storage.Backend, cfg.Storage.DBPath, version)
	logger.Info("starting", "version", version, "backend", cfg.Storage.Backend, "addr", cfg.Addr())

	a, err := app.New(cfg, version)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
}
