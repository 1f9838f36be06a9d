// Package web serves the AutoMed screens and live prediction feed.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-automed/pkg/display"
	"github.com/teslashibe/go-automed/pkg/hub"
	"github.com/teslashibe/go-automed/pkg/scanner"
	"github.com/teslashibe/go-automed/pkg/shell"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Session is the scanner session as seen by the web front end.
type Session interface {
	Start(ctx context.Context) error
	Stop()
	Snapshot() scanner.Snapshot
	Subscribe(fn func(scanner.Snapshot)) (cancel func())
	FrameJPEG() ([]byte, error)
}

var _ Session = (*scanner.Session)(nil)

// Config configures the server.
type Config struct {
	Port int

	// FrameInterval is the camera preview period.
	FrameInterval time.Duration

	// StartTimeout bounds model loading for a start triggered over HTTP.
	StartTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the default server config.
func DefaultConfig() Config {
	return Config{
		Port:          8080,
		FrameInterval: 100 * time.Millisecond,
		StartTimeout:  2 * time.Minute,
		Logger:        slog.Default(),
	}
}

// Server is the web front end.
type Server struct {
	app     *fiber.App
	cfg     Config
	session Session
	shell   *shell.Shell
	logger  *slog.Logger

	// Hubs for websocket broadcast
	predictionsHub *hub.Hub
	cameraHub      *hub.Hub

	wg sync.WaitGroup
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config, session Session, sh *shell.Shell) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultConfig().FrameInterval
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultConfig().StartTimeout
	}
	logger := cfg.Logger.With("component", "web")

	s := &Server{
		cfg:            cfg,
		session:        session,
		shell:          sh,
		logger:         logger,
		predictionsHub: hub.New("predictions", hub.WithReplay(), hub.WithLogger(logger)),
		cameraHub:      hub.New("camera", hub.WithLogger(logger)),
	}

	app := fiber.New(fiber.Config{
		AppName:               "AutoMed",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	static, _ := fs.Sub(staticFS, "static")
	app.Use("/static", filesystem.New(filesystem.Config{
		Root:   http.FS(static),
		MaxAge: 3600,
	}))

	// Screens
	app.Get("/", s.handleIndex)
	app.Post("/navigate/:screen", s.handleNavigate)
	app.Post("/scanner/start", s.handleStart)
	app.Post("/scanner/stop", s.handleStop)

	// API routes
	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/predictions", s.handlePredictions)
	api.Get("/frame.jpg", s.handleFrame)
	app.Get("/health", s.handleHealth)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/predictions", websocket.New(s.handlePredictionsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// App exposes the fiber app (tests).
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("web: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.start(ctx)
	s.logger.Info("web server listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	select {
	case err := <-errc:
		s.wg.Wait()
		return err
	case <-ctx.Done():
		err := s.app.ShutdownWithTimeout(5 * time.Second)
		s.wg.Wait()
		return err
	}
}

// start runs the hubs, the snapshot relay and the frame pump until ctx ends.
func (s *Server) start(ctx context.Context) {
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.predictionsHub.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.cameraHub.Run(ctx)
	}()

	unsubscribe := s.session.Subscribe(func(snap scanner.Snapshot) {
		s.predictionsHub.BroadcastJSON(s.view(snap))
	})
	s.shell.OnChange(func(from, to shell.Screen) {
		s.predictionsHub.BroadcastJSON(s.view(s.session.Snapshot()))
	})
	s.predictionsHub.BroadcastJSON(s.view(s.session.Snapshot()))

	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		s.pumpFrames(ctx)
	}()
}

// pumpFrames broadcasts preview JPEGs while someone is watching.
func (s *Server) pumpFrames(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.cameraHub.ClientCount() == 0 {
				continue
			}
			if s.session.Snapshot().State != scanner.StateActive {
				continue
			}
			frame, err := s.session.FrameJPEG()
			if err != nil {
				continue
			}
			s.cameraHub.BroadcastBinary(frame)
		}
	}
}

// StateView is the JSON shape of the scanner screen.
type StateView struct {
	Screen      shell.Screen  `json:"screen"`
	SessionID   string        `json:"sessionId,omitempty"`
	State       scanner.State `json:"state"`
	Error       string        `json:"error,omitempty"`
	Predictions []display.Row `json:"predictions"`
	Placeholder string        `json:"placeholder,omitempty"`
	Cycles      uint64        `json:"cycles"`
	Seq         uint64        `json:"seq"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func (s *Server) view(snap scanner.Snapshot) StateView {
	v := StateView{
		Screen:      s.shell.Current(),
		SessionID:   snap.SessionID,
		State:       snap.State,
		Error:       snap.Error,
		Predictions: display.Rows(snap.Predictions),
		Cycles:      snap.Cycles,
		Seq:         snap.Seq,
		UpdatedAt:   snap.UpdatedAt,
	}
	if len(v.Predictions) == 0 {
		v.Placeholder = display.Placeholder
	}
	return v
}
