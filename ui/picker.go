package ui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user leaves a picker without confirming.
var ErrCancelled = errors.New("selection cancelled")

// Item is one selectable row of a Picker.
type Item struct {
	Label    string
	Detail   string
	Selected bool
	// Disabled rows are shown but cannot be toggled.
	Disabled bool
}

// Picker is a multi-select list.
type Picker struct {
	title     string
	items     []Item
	cursor    int
	height    int
	offset    int
	confirmed bool
	cancelled bool
}

// NewPicker returns a picker over items. Items marked Selected start checked.
func NewPicker(title string, items []Item) Picker {
	return Picker{title: title, items: items, height: 20}
}

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// title, blank line, footer
		p.height = max(msg.Height-4, 1)
		p.scroll()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			p.cancelled = true
			return p, tea.Quit
		case "enter":
			p.confirmed = true
			return p, tea.Quit
		case "up", "k":
			if p.cursor > 0 {
				p.cursor--
			}
		case "down", "j":
			if p.cursor < len(p.items)-1 {
				p.cursor++
			}
		case " ":
			if len(p.items) > 0 && !p.items[p.cursor].Disabled {
				p.items[p.cursor].Selected = !p.items[p.cursor].Selected
			}
		case "a":
			all := true
			for _, it := range p.items {
				if !it.Disabled && !it.Selected {
					all = false
					break
				}
			}
			for i := range p.items {
				if !p.items[i].Disabled {
					p.items[i].Selected = !all
				}
			}
		}
		p.scroll()
	}
	return p, nil
}

func (p *Picker) scroll() {
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+p.height {
		p.offset = p.cursor - p.height + 1
	}
}

func (p Picker) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(p.title))
	b.WriteString("\n\n")

	if len(p.items) == 0 {
		b.WriteString(MutedStyle.Render("Nothing to choose from."))
		b.WriteString("\n")
	}

	end := min(p.offset+p.height, len(p.items))
	for i := p.offset; i < end; i++ {
		b.WriteString(p.renderRow(i))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("↑/k: up  ↓/j: down  space: select  a: all  enter: confirm  q: quit  (%d selected)", len(p.Selected()))))
	return b.String()
}

func (p Picker) renderRow(i int) string {
	it := p.items[i]
	mark := "[ ]"
	switch {
	case it.Selected:
		mark = "[✓]"
	case it.Disabled:
		mark = " - "
	}

	row := fmt.Sprintf("%s %-40s %s", mark, truncate(it.Label, 40), MutedStyle.Render(truncate(it.Detail, 50)))
	style := lipgloss.NewStyle().Padding(0, 1)
	if i == p.cursor {
		style = style.Background(lipgloss.Color("8")).Bold(true)
	}
	return style.Render(row)
}

// Selected returns the indexes of the checked items in list order.
func (p Picker) Selected() []int {
	var out []int
	for i, it := range p.items {
		if it.Selected {
			out = append(out, i)
		}
	}
	return out
}

// Confirmed reports whether the user accepted the selection.
func (p Picker) Confirmed() bool { return p.confirmed && !p.cancelled }

// RunPicker shows the picker and returns the chosen indexes.
func RunPicker(title string, items []Item) ([]int, error) {
	final, err := tea.NewProgram(NewPicker(title, items), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, fmt.Errorf("run picker: %w", err)
	}
	p := final.(Picker)
	if !p.Confirmed() {
		return nil, ErrCancelled
	}
	return p.Selected(), nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) > maxLen {
		return string(r[:maxLen-3]) + "..."
	}
	return s
}
