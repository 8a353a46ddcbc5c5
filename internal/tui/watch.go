package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"actas-cli/internal/syncer"
)

// Source is what the watch view polls. *syncer.Coordinator satisfies it.
type Source interface {
	Status(ctx context.Context) (syncer.Status, error)
	SyncNow(ctx context.Context) (syncer.Report, error)
}

type statusMsg struct {
	st  syncer.Status
	err error
}

type syncDoneMsg struct {
	rep syncer.Report
	err error
}

type tickMsg struct{}

type watchModel struct {
	src      Source
	interval time.Duration
	spin     spinner.Model

	width   int
	st      syncer.Status
	loaded  bool
	err     string
	syncing bool
	note    string
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	onlineStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "166", Dark: "214"})
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"})
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

func newWatchModel(src Source, interval time.Duration) watchModel {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	return watchModel{src: src, interval: interval, spin: sp}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.spin.Tick)
}

func (m watchModel) poll() tea.Cmd {
	src := m.src
	timeout := m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		st, err := src.Status(ctx)
		return statusMsg{st: st, err: err}
	}
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m watchModel) syncNow() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		rep, err := src.SyncNow(ctx)
		return syncDoneMsg{rep: rep, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "s":
			if m.syncing {
				return m, nil
			}
			m.syncing = true
			m.note = ""
			return m, m.syncNow()
		case "r":
			return m, m.poll()
		}
		return m, nil

	case statusMsg:
		m.loaded = true
		m.err = ""
		if msg.err != nil {
			m.err = msg.err.Error()
		} else {
			m.st = msg.st
		}
		return m, m.tick()

	case tickMsg:
		return m, m.poll()

	case syncDoneMsg:
		m.syncing = false
		if msg.err != nil {
			m.note = msg.err.Error()
		} else {
			m.note = fmt.Sprintf("synced %d, %d left", msg.rep.Processed, msg.rep.Remaining)
		}
		return m, m.poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var lines []string
	head := titleStyle.Render("actas sync")
	if m.syncing {
		head += " " + m.spin.View()
	}
	lines = append(lines, head, "")

	if !m.loaded {
		lines = append(lines, m.spin.View()+" loading…")
		return m.fit(lines)
	}

	conn := errStyle.Render("offline")
	if m.st.Online {
		conn = onlineStyle.Render("online")
	}
	lines = append(lines, "connectivity  "+conn)
	pending := fmt.Sprintf("%d", m.st.Pending)
	if m.st.Pending > 0 {
		pending = warnStyle.Render(pending)
	}
	lines = append(lines, "pending       "+pending)
	if m.st.Stalled > 0 {
		lines = append(lines, "stalled       "+errStyle.Render(fmt.Sprintf("%d", m.st.Stalled)))
	}
	if m.st.Conflicts > 0 {
		lines = append(lines, "conflicts     "+errStyle.Render(fmt.Sprintf("%d", m.st.Conflicts))+faintStyle.Render("  (actas conflicts)"))
	}
	if len(m.st.Corrupted) > 0 {
		lines = append(lines, "corrupted     "+errStyle.Render(strings.Join(m.st.Corrupted, ", ")))
	}
	if !m.st.LastFlushAt.IsZero() {
		lines = append(lines, "last flush    "+m.st.LastFlushAt.Local().Format("15:04:05"))
	}
	if !m.st.NextAttemptAt.IsZero() {
		lines = append(lines, "next retry    "+m.st.NextAttemptAt.Local().Format("15:04:05"))
	}
	if m.st.LastError != "" {
		lines = append(lines, "last error    "+errStyle.Render(m.st.LastError))
	}
	if m.err != "" {
		lines = append(lines, "", errStyle.Render(m.err))
	}
	if m.note != "" {
		lines = append(lines, "", m.note)
	}
	lines = append(lines, "", faintStyle.Render("s sync now · r refresh · q quit"))
	return m.fit(lines)
}

// fit truncates each line to the terminal width.
func (m watchModel) fit(lines []string) string {
	if m.width > 0 {
		for i, l := range lines {
			lines[i] = xansi.Truncate(l, m.width, "…")
		}
	}
	return strings.Join(lines, "\n")
}

// Watch runs the view until the user quits or ctx is done.
func Watch(ctx context.Context, src Source, interval time.Duration) error {
	applyColorProfile()
	_, err := tea.NewProgram(newWatchModel(src, interval), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func applyColorProfile() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.ColorProfile())
}
