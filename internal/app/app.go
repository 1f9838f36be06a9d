// Package app wires configuration, the classifier, the camera and the
// scanner session together for the AutoMed binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"

	"github.com/teslashibe/go-automed/internal/config"
	"github.com/teslashibe/go-automed/internal/log"
	"github.com/teslashibe/go-automed/pkg/camera"
	"github.com/teslashibe/go-automed/pkg/camera/opencv"
	"github.com/teslashibe/go-automed/pkg/classifier"
	"github.com/teslashibe/go-automed/pkg/classifier/dnn"
	"github.com/teslashibe/go-automed/pkg/classifier/onnx"
	"github.com/teslashibe/go-automed/pkg/scanner"
	"github.com/teslashibe/go-automed/pkg/shell"
	"github.com/teslashibe/go-automed/pkg/web"
)

// ConfigError lists every configuration problem found.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Override adjusts a loaded config, typically from command line flags.
type Override func(*config.Config)

// LoadConfig reads path, then .env files, then the environment, applies
// overrides and validates the result.
func LoadConfig(path string, envFiles []string, overrides ...Override) (*config.Config, error) {
	if path == "" {
		path = config.DefaultPath
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return cfg, nil
}

// DefaultModelWarning is shown when the built-in model URL is in use. That
// export is a Teachable Machine layers model, which no bundled backend runs.
const DefaultModelWarning = "the default model is a layers-model export and cannot run here; " +
	"set AUTOMED_MODEL_URL (or model.base_url) to an ONNX or TensorFlow graph export"

// UsesDefaultModel reports whether cfg still points at the built-in model.
func UsesDefaultModel(cfg *config.Config) bool {
	return strings.TrimSuffix(cfg.Model.BaseURL, "/") == strings.TrimSuffix(classifier.DefaultModelURL, "/")
}

// Backends returns the inference backends named by the config, in
// preference order.
func Backends(cfg *config.Config) []classifier.Backend {
	switch cfg.Model.Backend {
	case config.BackendONNX:
		return []classifier.Backend{onnx.New(cfg.Model.ONNXLibrary)}
	case config.BackendDNN:
		return []classifier.Backend{dnn.New()}
	default:
		return []classifier.Backend{onnx.New(cfg.Model.ONNXLibrary), dnn.New()}
	}
}

// Option overrides a component, mostly for tests.
type Option func(*App)

// WithLoader replaces the HTTP model loader.
func WithLoader(l classifier.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithWebcams replaces the OpenCV webcam factory.
func WithWebcams(f camera.Factory) Option {
	return func(a *App) { a.webcams = f }
}

// WithLogger sets the logger instead of the global one.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// App owns the scanner session and the screen shell.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	loader  classifier.Loader
	webcams camera.Factory

	Session *scanner.Session
	Shell   *shell.Shell
}

// New builds the application from a validated config.
func New(cfg *config.Config, opts ...Option) *App {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.L()
	}
	if a.loader == nil {
		a.loader = classifier.NewLoader(
			classifier.WithBackends(Backends(cfg)...),
			classifier.WithFetchTimeout(cfg.Model.FetchTimeout),
			classifier.WithLogger(a.logger),
		)
	}
	if a.webcams == nil {
		a.webcams = opencv.Factory
	}
	if UsesDefaultModel(cfg) {
		a.logger.Warn(DefaultModelWarning, "model", cfg.Model.BaseURL)
	}

	a.Session = scanner.NewSession(a.loader, a.webcams,
		scanner.WithConfig(scanner.Config{
			TopologyURL: classifier.TopologyURL(cfg.Model.BaseURL),
			MetadataURL: classifier.MetadataURL(cfg.Model.BaseURL),
			Camera:      cfg.Camera,
			Interval:    cfg.RefreshInterval(),
		}),
		scanner.WithLogger(a.logger),
	)
	a.Shell = shell.New(a.Session, a.logger)
	return a
}

// Config returns the config the app was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Web creates the web front end for this app.
func (a *App) Web() *web.Server {
	wcfg := web.DefaultConfig()
	wcfg.Port = a.cfg.Server.Port
	wcfg.StartTimeout = a.cfg.Model.FetchTimeout * 4
	wcfg.Logger = a.logger
	return web.NewServer(wcfg, a.Session, a.Shell)
}

// RunWeb serves the web front end until ctx is cancelled.
func (a *App) RunWeb(ctx context.Context) error {
	return a.Web().Run(ctx)
}

// Shutdown stops any scan in progress.
func (a *App) Shutdown() {
	a.Session.Stop()
}

// Banner prints the startup summary.
func Banner(w io.Writer, cfg *config.Config, frontEnd string) {
	title := color.New(color.FgCyan, color.Bold)
	key := color.New(color.FgHiBlack)

	title.Fprintln(w, "AutoMed")
	fmt.Fprintln(w, "AI-Powered Counterfeit Drug Detection")
	fmt.Fprintln(w)
	key.Fprint(w, "  model    ")
	fmt.Fprintln(w, cfg.Model.BaseURL)
	if UsesDefaultModel(cfg) {
		color.New(color.FgYellow).Fprintln(w, "  warning: "+DefaultModelWarning)
	}
	key.Fprint(w, "  backend  ")
	fmt.Fprintln(w, cfg.Model.Backend)
	key.Fprint(w, "  camera   ")
	fmt.Fprintf(w, "device %d, %dx%d, flip %v\n", cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Flip)
	key.Fprint(w, "  refresh  ")
	fmt.Fprintf(w, "%d Hz\n", cfg.Loop.RefreshRate)
	if frontEnd == "web" {
		key.Fprint(w, "  web      ")
		color.New(color.FgGreen).Fprintf(w, "http://localhost:%d\n", cfg.Server.Port)
	}
	fmt.Fprintln(w)
}
