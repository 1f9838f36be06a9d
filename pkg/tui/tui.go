// Package tui is a terminal front end for AutoMed. It renders the Home and
// Scanner screens and drives the same scanner session the web server uses.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-automed/pkg/display"
	"github.com/teslashibe/go-automed/pkg/scanner"
	"github.com/teslashibe/go-automed/pkg/shell"
)

// Session is the scanner session as seen by the terminal.
type Session interface {
	Start(ctx context.Context) error
	Stop()
	Snapshot() scanner.Snapshot
	Subscribe(fn func(scanner.Snapshot)) (cancel func())
}

var _ Session = (*scanner.Session)(nil)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2563EB"))
	taglineStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#6B7280"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#DC2626"))
	highStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#16A34A"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const labelWidth = 16

type snapshotMsg scanner.Snapshot

type startedMsg struct{ err error }

// Model is the bubbletea model.
type Model struct {
	ctx     context.Context
	session Session
	shell   *shell.Shell
	updates chan scanner.Snapshot

	snap    scanner.Snapshot
	spinner spinner.Model
	bar     progress.Model
}

// New creates a model. Session updates are delivered through a one-slot
// channel that keeps only the newest snapshot.
func New(ctx context.Context, session Session, sh *shell.Shell) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		ctx:     ctx,
		session: session,
		shell:   sh,
		updates: make(chan scanner.Snapshot, 1),
		snap:    session.Snapshot(),
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
	}
}

// Subscribe connects the model to session changes. The returned func
// disconnects it.
func (m *Model) Subscribe() (cancel func()) {
	return m.session.Subscribe(func(snap scanner.Snapshot) {
		for {
			select {
			case m.updates <- snap:
				return
			default:
			}
			select {
			case <-m.updates:
			default:
			}
		}
	})
}

func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-m.updates:
			return snapshotMsg(snap)
		case <-m.ctx.Done():
			return tea.Quit()
		}
	}
}

// Init starts the spinner and the snapshot listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

// Update handles keys and session changes.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg.String())

	case tea.WindowSizeMsg:
		w := msg.Width - labelWidth - 16
		if w < 10 {
			w = 10
		}
		m.bar.Width = w
		return m, nil

	case snapshotMsg:
		m.snap = scanner.Snapshot(msg)
		return m, m.listen()

	case startedMsg:
		m.snap = m.session.Snapshot()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(key string) tea.Cmd {
	switch key {
	case "ctrl+c", "q":
		m.session.Stop()
		return tea.Quit
	}

	if m.shell.Current() == shell.Home {
		switch key {
		case "enter", "s":
			m.shell.Navigate(string(shell.Scanner))
		}
		return nil
	}

	switch key {
	case "enter", "s":
		if m.snap.Running() || m.session.Snapshot().Running() {
			return nil
		}
		return m.start()
	case "x":
		m.session.Stop()
		m.snap = m.session.Snapshot()
	case "b", "esc":
		m.shell.Navigate(string(shell.Home))
		m.snap = m.session.Snapshot()
	}
	return nil
}

func (m *Model) start() tea.Cmd {
	ctx := m.ctx
	session := m.session
	return func() tea.Msg {
		err := session.Start(ctx)
		if errors.Is(err, scanner.ErrAborted) {
			err = nil
		}
		return startedMsg{err: err}
	}
}

// View renders the current screen.
func (m *Model) View() string {
	if m.shell.Current() == shell.Scanner {
		return m.scannerView()
	}
	return m.homeView()
}

func (m *Model) homeView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("AutoMed") + "\n")
	b.WriteString(taglineStyle.Render("AI-Powered Counterfeit Drug Detection") + "\n\n")
	b.WriteString("Use our advanced scanning technology to verify the authenticity of medications instantly.\n\n")
	for _, f := range []string{"Real-time drug verification", "AI-powered analysis", "Instant results"} {
		b.WriteString("  • " + f + "\n")
	}
	b.WriteString("\n" + boxStyle.Render("Start Scanning") + "\n\n")
	b.WriteString(helpStyle.Render("enter: start scanning • q: quit") + "\n")
	return b.String()
}

func (m *Model) scannerView() string {
	snap := m.snap

	var b strings.Builder
	b.WriteString(titleStyle.Render("AutoMed Computer Vision Scanner") + "\n")
	b.WriteString(taglineStyle.Render("Real-time medication identification using AI-powered image recognition") + "\n\n")

	switch snap.State {
	case scanner.StateModelLoading:
		b.WriteString(m.spinner.View() + " Loading model...\n")
	case scanner.StateActive:
		b.WriteString(highStyle.Render("● Camera running") + fmt.Sprintf("  %d frames classified\n", snap.Cycles))
	default:
		b.WriteString("Camera feed will appear here\n")
	}

	if snap.Error != "" {
		b.WriteString("\n" + errorStyle.Render("Error Loading Model") + "\n")
		b.WriteString(snap.Error + "\n")
	}

	b.WriteString("\nPredictions\n")
	rows := display.Rows(snap.Predictions)
	if len(rows) == 0 {
		b.WriteString(helpStyle.Render(display.Placeholder) + "\n")
	}
	for _, r := range rows {
		label := fmt.Sprintf("%-*s", labelWidth, r.Label)
		pct := fmt.Sprintf("%6s", r.Percent)
		if r.HighConfidence {
			label = highStyle.Render(label)
			pct = highStyle.Render(pct)
		}
		b.WriteString(label + " " + m.bar.ViewAs(float64(r.Bar)/100) + " " + pct + "\n")
	}

	b.WriteString("\n")
	if snap.Running() {
		b.WriteString(boxStyle.Render("Stop Camera") + "\n\n")
		b.WriteString(helpStyle.Render("x: stop camera • b: back to home • q: quit") + "\n")
	} else {
		b.WriteString(boxStyle.Render("Start Camera Scan") + "\n\n")
		b.WriteString(helpStyle.Render("s: start camera scan • b: back to home • q: quit") + "\n")
	}
	return b.String()
}

// Run shows the terminal UI until the user quits or ctx ends. The session
// is stopped on exit.
func Run(ctx context.Context, session Session, sh *shell.Shell, opts ...tea.ProgramOption) error {
	m := New(ctx, session, sh)
	unsubscribe := m.Subscribe()
	defer unsubscribe()
	defer session.Stop()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(m, opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
