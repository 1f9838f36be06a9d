// AutoMed - webcam medication classifier served as a web app.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/teslashibe/go-automed/internal/app"
	"github.com/teslashibe/go-automed/internal/config"
	"github.com/teslashibe/go-automed/internal/log"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the TOML config file")
	envFile := flag.String("env", ".env", "Optional .env file")
	port := flag.Int("port", 0, "HTTP port (overrides config and AUTOMED_PORT)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath, []string{*envFile}, func(c *config.Config) {
		if *port != 0 {
			c.Server.Port = *port
		}
		if *debug {
			c.Log.Level = "debug"
		}
	})
	if err != nil {
		color.Red("Configuration error: %v", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Options())
	app.Banner(os.Stdout, cfg, "web")

	if err := run(cfg); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config) error {
	a := app.New(cfg)
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.RunWeb(ctx)
}
