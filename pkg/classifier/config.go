package classifier

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-automed/internal/httpc"
)

// DefaultModelURL is the base URL of the published AutoMed model.
const DefaultModelURL = "https://teachablemachine.withgoogle.com/models/DPVgfcKq5/"

// File names under a model base URL.
const (
	TopologyFile = "model.json"
	MetadataFile = "metadata.json"
)

// TopologyURL returns base + "model.json".
func TopologyURL(base string) string {
	return joinURL(base, TopologyFile)
}

// MetadataURL returns base + "metadata.json".
func MetadataURL(base string) string {
	return joinURL(base, MetadataFile)
}

func joinURL(base, file string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + file
}

// Config holds loader configuration.
type Config struct {
	// Client downloads model files. Nil uses a client with FetchTimeout.
	Client *http.Client

	// FetchTimeout bounds each download when Client is nil.
	FetchTimeout time.Duration

	// BodyLimit caps each downloaded file.
	BodyLimit int64

	// Backends are tried in order; the first that supports the format wins.
	Backends []Backend

	Logger *slog.Logger
}

// Option is a functional option for configuring the loader.
type Option func(*Config)

// WithClient sets the HTTP client used for downloads.
func WithClient(c *http.Client) Option {
	return func(cfg *Config) { cfg.Client = c }
}

// WithFetchTimeout sets the per-download timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(cfg *Config) { cfg.FetchTimeout = d }
}

// WithBodyLimit caps the size of each downloaded file.
func WithBodyLimit(n int64) Option {
	return func(cfg *Config) { cfg.BodyLimit = n }
}

// WithBackends sets the compile backends in preference order.
func WithBackends(b ...Backend) Option {
	return func(cfg *Config) { cfg.Backends = b }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) { cfg.Logger = l }
}

// DefaultConfig returns loader defaults.
func DefaultConfig() *Config {
	return &Config{
		FetchTimeout: 30 * time.Second,
		BodyLimit:    httpc.DefaultBodyLimit,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
