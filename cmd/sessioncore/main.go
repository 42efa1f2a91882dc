package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/rosielabs/sessioncore/internal/api"
	"github.com/rosielabs/sessioncore/internal/config"
	"github.com/rosielabs/sessioncore/internal/eventbus"
	"github.com/rosielabs/sessioncore/internal/logging"
	"github.com/rosielabs/sessioncore/internal/orchestrator"
	"github.com/rosielabs/sessioncore/internal/registry"
	"github.com/rosielabs/sessioncore/internal/rtcgateway"
	"github.com/rosielabs/sessioncore/internal/server"
	"github.com/rosielabs/sessioncore/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML configuration file")
	flag.Parse()

	cfg := loadConfig(*configPath)
	logger, closeLogging := setupLogging(cfg)
	defer closeLogging()

	store := session.NewStore()
	reg := registry.New()
	bus := eventbus.New()
	gateway := rtcgateway.NewHTTPGateway(cfg.Rtc.ServerURL, cfg.Rtc.APIKey, cfg.Rtc.APISecret)

	orch := orchestrator.New(store, reg, bus, gateway, cfg.Rtc.ServerURL, orchestrator.OptionsFromConfig(cfg), logger)

	router := api.NewRouter(&api.Handlers{
		Orchestrator: orch,
		Store:        store,
		Registry:     reg,
		Bus:          bus,
		Logger:       logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, router, orch, logger)
	if err := srv.Run(); err != nil {
		log.Fatalf("session orchestration core exited with error: %v", err)
	}
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	return cfg
}

func setupLogging(cfg config.Config) (*slog.Logger, func()) {
	logger, closeFn, err := logging.Setup(cfg.Logging, cfg.LogShipper)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	slog.SetDefault(logger)
	return logger, closeFn
}
