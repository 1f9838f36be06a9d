package web

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-automed/pkg/camera"
	"github.com/teslashibe/go-automed/pkg/classifier"
	"github.com/teslashibe/go-automed/pkg/scanner"
	"github.com/teslashibe/go-automed/pkg/shell"
)

type fixture struct {
	server  *Server
	session *scanner.Session
	shell   *shell.Shell
	loader  *classifier.MockLoader
	webcams *[]*camera.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	model := classifier.NewMockModel("Genuine", "Counterfeit", "Unknown")
	model.PredictFunc = func(ctx context.Context, _ image.Image) ([]classifier.Prediction, error) {
		return []classifier.Prediction{
			{Label: "Genuine", Probability: 0.9},
			{Label: "Counterfeit", Probability: 0.07},
			{Label: "Unknown", Probability: 0.03},
		}, nil
	}
	loader := classifier.NewMockLoader(model)
	factory, webcams := camera.MockFactory(nil)

	cfg := scanner.DefaultConfig()
	cfg.Camera.Width, cfg.Camera.Height = 16, 16
	cfg.Interval = 5 * time.Millisecond
	session := scanner.NewSession(loader, factory, scanner.WithConfig(cfg))
	sh := shell.New(session, nil)

	wcfg := DefaultConfig()
	wcfg.FrameInterval = 10 * time.Millisecond
	f := &fixture{
		server:  NewServer(wcfg, session, sh),
		session: session,
		shell:   sh,
		loader:  loader,
		webcams: webcams,
	}
	t.Cleanup(session.Stop)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, jsonClient bool) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if jsonClient {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decode(t *testing.T, resp *http.Response) StateView {
	t.Helper()
	defer resp.Body.Close()
	var v StateView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) waitState(t *testing.T, want scanner.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.session.State() == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestIndex_Home(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	html := body(t, resp)
	assert.Contains(t, html, "AutoMed")
	assert.Contains(t, html, "AI-Powered Counterfeit Drug Detection")
	assert.Contains(t, html, "Start Scanning")
	assert.NotContains(t, html, "Start Camera Scan")
}

func TestIndex_ScannerDeepLink(t *testing.T) {
	f := newFixture(t)

	html := body(t, f.do(t, http.MethodGet, "/?screen=scanner", false))
	assert.Contains(t, html, "AutoMed Computer Vision Scanner")
	assert.Contains(t, html, "Start Camera Scan")
	assert.Contains(t, html, "Back to Home")
	assert.Contains(t, html, "Start the camera to see predictions")
	assert.Equal(t, shell.Scanner, f.shell.Current())

	// Unknown screens render the current one.
	html = body(t, f.do(t, http.MethodGet, "/?screen=admin", false))
	assert.Contains(t, html, "Start Camera Scan")

	fresh := newFixture(t)
	html = body(t, fresh.do(t, http.MethodGet, "/?screen=admin", false))
	assert.Contains(t, html, "Start Scanning")
	assert.Equal(t, shell.Home, fresh.shell.Current())
}

func TestIndex_HomeLinkKeepsScanRunning(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/scanner/start", true).Body.Close()
	f.waitState(t, scanner.StateActive)

	html := body(t, f.do(t, http.MethodGet, "/?screen=home", false))
	assert.Contains(t, html, "Stop Camera")
	assert.Equal(t, shell.Scanner, f.shell.Current())
	assert.Equal(t, scanner.StateActive, f.session.State())
	require.Len(t, *f.webcams, 1)
	assert.Zero(t, (*f.webcams)[0].CallCount("Stop"))
}

func TestNavigate(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/navigate/scanner", false)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	v := decode(t, f.do(t, http.MethodPost, "/navigate/home", true))
	assert.Equal(t, shell.Home, v.Screen)
	assert.Equal(t, scanner.StateIdle, v.State)
}

func TestScanFlow(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/navigate/scanner", true)

	resp := f.do(t, http.MethodPost, "/scanner/start", true)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	f.waitState(t, scanner.StateActive)

	resp = f.do(t, http.MethodPost, "/scanner/start", true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
	assert.Len(t, *f.webcams, 1)

	require.Eventually(t, func() bool {
		v := decode(t, f.do(t, http.MethodGet, "/api/state", true))
		return len(v.Predictions) == 3 && v.Predictions[0].Percent == "90.0%"
	}, 2*time.Second, 5*time.Millisecond)

	html := body(t, f.do(t, http.MethodGet, "/", false))
	assert.Contains(t, html, "Stop Camera")
	assert.Contains(t, html, "Genuine")
	assert.Contains(t, html, "prediction high")

	frame := f.do(t, http.MethodGet, "/api/frame.jpg", false)
	require.Equal(t, http.StatusOK, frame.StatusCode)
	assert.Equal(t, "image/jpeg", frame.Header.Get("Content-Type"))
	assert.NotEmpty(t, body(t, frame))

	v := decode(t, f.do(t, http.MethodPost, "/scanner/stop", true))
	assert.Equal(t, scanner.StateIdle, v.State)
	assert.Empty(t, v.Predictions)
	assert.Equal(t, "Start the camera to see predictions", v.Placeholder)
	assert.Equal(t, 1, (*f.webcams)[0].CallCount("Stop"))
}

func TestBackToHomeStopsScan(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/scanner/start", true).Body.Close()
	f.waitState(t, scanner.StateActive)
	assert.Equal(t, shell.Scanner, f.shell.Current(), "start opens the scanner screen")

	v := decode(t, f.do(t, http.MethodPost, "/navigate/home", true))
	assert.Equal(t, shell.Home, v.Screen)
	assert.Equal(t, scanner.StateIdle, v.State)
	require.Len(t, *f.webcams, 1)
	assert.Equal(t, 1, (*f.webcams)[0].CallCount("Stop"))
}

func TestLoadFailureShowsError(t *testing.T) {
	f := newFixture(t)
	f.loader.LoadFunc = func(ctx context.Context, topologyRef, metadataRef string) (classifier.Model, error) {
		return nil, errors.New("dns failure")
	}

	f.do(t, http.MethodPost, "/scanner/start", true).Body.Close()
	f.waitState(t, scanner.StateError)

	v := decode(t, f.do(t, http.MethodGet, "/api/state", true))
	assert.Equal(t, scanner.LoadFailureMessage, v.Error)

	html := body(t, f.do(t, http.MethodGet, "/", false))
	assert.Contains(t, html, "Error Loading Model")
	assert.Contains(t, html, scanner.LoadFailureMessage)
	assert.Contains(t, html, "Start Camera Scan", "a new start is allowed after an error")
}

func TestFrame_NotFoundWhenIdle(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/frame.jpg", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndStatic(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/health", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","state":"idle"}`, body(t, resp))

	resp = f.do(t, http.MethodGet, "/static/scanner.js", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "/ws/predictions")

	resp = f.do(t, http.MethodGet, "/api/predictions", true)
	assert.JSONEq(t, `{"predictions":[],"placeholder":"Start the camera to see predictions"}`, body(t, resp))
}

func TestWebsocket_RequiresUpgrade(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/ws/predictions", false)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
	resp.Body.Close()
}

func TestWebsocket_Predictions(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- f.server.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-served
	}()

	url := "ws://" + ln.Addr().String()
	conn, _, err := gws.DefaultDialer.Dial(url+"/ws/predictions", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() StateView {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var v StateView
		require.NoError(t, json.Unmarshal(data, &v))
		return v
	}

	// Replay of the current state on connect.
	first := read()
	assert.Equal(t, scanner.StateIdle, first.State)

	cam, _, err := gws.DefaultDialer.Dial(url+"/ws/camera", nil)
	require.NoError(t, err)
	defer cam.Close()

	require.NoError(t, f.session.Start(context.Background()))

	for {
		v := read()
		if v.State == scanner.StateActive && len(v.Predictions) == 3 && v.Predictions[0].HighConfidence {
			break
		}
	}

	cam.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, frame, err := cam.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gws.BinaryMessage, mt)
	assert.True(t, strings.HasPrefix(string(frame), "\xff\xd8"), "JPEG frame")

	f.session.Stop()
}
