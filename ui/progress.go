package ui

import (
	"context"
	"fmt"
	"strings"

	"vintage-mod-manager/download"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type eventMsg download.Event

type batchDoneMsg struct{}

// Progress shows a running download batch. The batch runs in its own
// goroutine and reports through a channel that the model drains.
type Progress struct {
	spinner spinner.Model
	events  chan download.Event
	run     func(emit func(download.Event))
	cancel  context.CancelFunc

	total       int
	status      string
	downloading []string
	completed   []string
	errors      []string
	succeeded   int
	skipped     int
	failed      int
	cancelling  bool
	done        bool
}

// NewProgress returns a model for a batch of total items. run is started by
// Init and must call emit for every event; the view finishes when run
// returns. cancel, if set, is called when the user quits early.
func NewProgress(total int, run func(emit func(download.Event)), cancel context.CancelFunc) Progress {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Progress{
		spinner: s,
		events:  make(chan download.Event, 100),
		run:     run,
		cancel:  cancel,
		total:   total,
		status:  "Starting...",
	}
}

func (m Progress) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(), m.waitForActivity())
}

func (m Progress) start() tea.Cmd {
	return func() tea.Msg {
		go func() {
			defer close(m.events)
			m.run(func(ev download.Event) { m.events <- ev })
		}()
		return nil
	}
}

func (m Progress) waitForActivity() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return batchDoneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.done {
			return m, tea.Quit
		}
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			// Keep draining until the batch has actually stopped.
			if m.cancel != nil && !m.cancelling {
				m.cancel()
			}
			m.cancelling = true
			m.status = "Cancelling..."
		}

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case batchDoneMsg:
		m.done = true
		m.status = "Finished"
		return m, tea.Quit

	case eventMsg:
		m.apply(download.Event(msg))
		return m, m.waitForActivity()
	}
	return m, nil
}

func (m *Progress) apply(ev download.Event) {
	switch ev.Kind {
	case download.EventStarted:
		if !m.cancelling {
			m.status = fmt.Sprintf("Resolving %s...", ev.Ref.ModID)
		}
	case download.EventDownloading:
		m.downloading = append(m.downloading, label(ev.Ref.ModID, ev.Version))
	case download.EventFinished:
		m.downloading = remove(m.downloading, label(ev.Ref.ModID, ev.Version))
		if ev.Outcome == nil {
			return
		}
		switch ev.Outcome.Status {
		case download.Success:
			m.succeeded++
			line := "Installed " + label(ev.Ref.ModID, ev.Version)
			if ev.Outcome.Warning != "" {
				line += " " + WarningStyle.Render("("+ev.Outcome.Warning+")")
			}
			m.completed = append(m.completed, line)
		case download.Skipped:
			m.skipped++
			m.completed = append(m.completed, MutedStyle.Render("Up to date "+label(ev.Ref.ModID, ev.Version)))
		case download.Failed:
			m.failed++
			m.errors = append(m.errors, fmt.Sprintf("%s: %v", ev.Ref.ModID, ev.Outcome.Err))
		}
	}
}

func label(id, version string) string {
	if version == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", id, version)
}

func remove(list []string, v string) []string {
	for i, s := range list {
		if s == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Summary is the one-line result shown when the batch ends.
func (m Progress) Summary() string {
	return fmt.Sprintf("%d installed, %d up to date, %d failed (of %d)", m.succeeded, m.skipped, m.failed, m.total)
}

func (m Progress) View() string {
	var symbol string
	if m.done {
		symbol = SuccessStyle.Render("✓")
	} else {
		symbol = m.spinner.View()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n %s %s  %s\n\n", symbol, m.status,
		MutedStyle.Render(fmt.Sprintf("%d/%d", m.succeeded+m.skipped+m.failed, m.total)))

	if len(m.downloading) > 0 {
		b.WriteString(lipgloss.NewStyle().Bold(true).Render("Downloading:") + "\n")
		for _, d := range m.downloading {
			fmt.Fprintf(&b, "  • %s\n", d)
		}
		b.WriteString("\n")
	}

	if len(m.errors) > 0 {
		b.WriteString(ErrorStyle.Render("Errors:") + "\n")
		for _, e := range m.errors {
			fmt.Fprintf(&b, "  • %s\n", e)
		}
		b.WriteString("\n")
	}

	if len(m.completed) > 0 {
		b.WriteString(SuccessStyle.Render("Completed:") + "\n")
		start := 0
		if len(m.completed) > 5 && !m.done {
			start = len(m.completed) - 5
		}
		for _, c := range m.completed[start:] {
			fmt.Fprintf(&b, "  • %s\n", c)
		}
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString(lipgloss.NewStyle().Bold(true).Render(m.Summary()) + "\n")
	}
	return b.String()
}

// RunProgress runs the batch under the progress view.
func RunProgress(total int, run func(emit func(download.Event)), cancel context.CancelFunc) error {
	if _, err := tea.NewProgram(NewProgress(total, run, cancel)).Run(); err != nil {
		return fmt.Errorf("run progress view: %w", err)
	}
	return nil
}
