package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rajchodisetti/price-alerts/internal/config"
	"github.com/Rajchodisetti/price-alerts/internal/di"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

// version is set via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "configs/alertbot.yaml", "config path (empty for defaults and env only)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		observ.Error("config_load_failed", err, map[string]any{"path": cfgPath})
		os.Exit(1)
	}
	if err := observ.Init(cfg.Log); err != nil {
		observ.Error("logger_init_failed", err, nil)
		os.Exit(1)
	}
	observ.SetVersion(version)

	app, cleanup, err := di.InitializeApp(&cfg)
	if err != nil {
		observ.Error("app_init_failed", err, nil)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = app.Run(ctx)
	stop()
	cleanup()

	if err != nil && !errors.Is(err, context.Canceled) {
		observ.Error("app_exited", err, nil)
		os.Exit(1)
	}
}
