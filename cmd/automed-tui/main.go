// AutoMed in the terminal - the same scanner driven from a TUI.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/teslashibe/go-automed/internal/app"
	"github.com/teslashibe/go-automed/internal/config"
	"github.com/teslashibe/go-automed/internal/log"
	"github.com/teslashibe/go-automed/pkg/tui"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the TOML config file")
	envFile := flag.String("env", ".env", "Optional .env file")
	logFile := flag.String("log", "automed-tui.log", "Log file (the terminal is taken by the UI)")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath, []string{*envFile}, func(c *config.Config) {
		if c.Log.File == "" {
			c.Log.File = *logFile
		}
	})
	if err != nil {
		color.Red("Configuration error: %v", err)
		os.Exit(1)
	}

	opts := cfg.Log.Options()
	opts.Output = io.Discard
	log.Init(opts)
	app.Banner(os.Stdout, cfg, "tui")

	if err := run(cfg); err != nil {
		color.Red("TUI error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	a := app.New(cfg)
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return tui.Run(ctx, a.Session, a.Shell, tea.WithAltScreen())
}
