package ui

import (
	"errors"
	"strings"
	"testing"

	"vintage-mod-manager/compat"
	"vintage-mod-manager/download"
	"vintage-mod-manager/modset"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(p Picker, keys ...string) Picker {
	var m tea.Model = p
	for _, k := range keys {
		m, _ = m.Update(key(k))
	}
	return m.(Picker)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"Hello World", 5, "He..."},
		{"Hi", 5, "Hi"},
		{"Test", 4, "Test"},
		{"LongString", 7, "Long..."},
		{"", 5, ""},
		{"Überraschung", 6, "Übe..."},
	}

	for _, test := range tests {
		result := truncate(test.input, test.maxLen)
		if result != test.expected {
			t.Fatalf("truncate(%q, %d) = %q, expected %q", test.input, test.maxLen, result, test.expected)
		}
	}
}

func TestPickerNavigationAndSelection(t *testing.T) {
	p := NewPicker("Mods", []Item{
		{Label: "fancyrug"},
		{Label: "carrycapacity", Disabled: true},
		{Label: "primitivesurvival"},
	})

	p = press(p, "up")
	assert.Equal(t, 0, p.cursor, "cursor should not move above the first row")

	p = press(p, " ", "j", " ", "down", " ", "down")
	assert.Equal(t, 2, p.cursor, "cursor should stop at the last row")
	assert.Equal(t, []int{0, 2}, p.Selected(), "disabled rows cannot be toggled")

	p = press(p, "k", "k", " ")
	assert.Equal(t, []int{2}, p.Selected())

	p = press(p, "enter")
	assert.True(t, p.Confirmed())
}

func TestPickerSelectAll(t *testing.T) {
	p := NewPicker("Mods", []Item{{Label: "a"}, {Label: "b", Selected: true}, {Label: "c", Disabled: true}})

	p = press(p, "a")
	assert.Equal(t, []int{0, 1}, p.Selected())

	p = press(p, "a")
	assert.Empty(t, p.Selected())
}

func TestPickerCancel(t *testing.T) {
	for _, k := range []string{"q", "esc"} {
		p := press(NewPicker("Mods", []Item{{Label: "a", Selected: true}}), k)
		assert.False(t, p.Confirmed(), "key %q should cancel", k)
	}
}

func TestPickerScrollsWithCursor(t *testing.T) {
	items := make([]Item, 10)
	for i := range items {
		items[i].Label = strings.Repeat("x", i+1)
	}
	var m tea.Model = NewPicker("Mods", items)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 7})
	p := m.(Picker)
	assert.Equal(t, 3, p.height)

	p = press(p, "down", "down", "down", "down")
	assert.Equal(t, 2, p.offset)
	assert.NotContains(t, p.View(), "xxxxxxxxxx")
}

func TestProgressTracksOutcomes(t *testing.T) {
	p := NewProgress(3, nil, nil)
	ref := func(id string) modset.Reference { return modset.Reference{ModID: id} }

	events := []download.Event{
		{Kind: download.EventStarted, Ref: ref("a")},
		{Kind: download.EventDownloading, Ref: ref("a"), Version: "1.0.0"},
		{Kind: download.EventFinished, Ref: ref("a"), Version: "1.0.0", Outcome: &download.Outcome{Status: download.Success, Release: compat.ModRelease{Version: "1.0.0"}}},
		{Kind: download.EventFinished, Ref: ref("b"), Version: "2.0.0", Outcome: &download.Outcome{Status: download.Skipped}},
		{Kind: download.EventFinished, Ref: ref("c"), Outcome: &download.Outcome{Status: download.Failed, Err: errors.New("boom")}},
	}
	var m tea.Model = p
	for _, ev := range events {
		m, _ = m.Update(eventMsg(ev))
	}
	m, cmd := m.Update(batchDoneMsg{})
	p = m.(Progress)

	assert.NotNil(t, cmd)
	assert.True(t, p.done)
	assert.Empty(t, p.downloading)
	assert.Equal(t, "1 installed, 1 up to date, 1 failed (of 3)", p.Summary())
	assert.Contains(t, p.View(), "c: boom")
}

func TestProgressQuitCancelsBatch(t *testing.T) {
	cancelled := 0
	var m tea.Model = NewProgress(1, nil, func() { cancelled++ })

	m, cmd := m.Update(key("q"))
	assert.Nil(t, cmd, "the view keeps running until the batch stops")
	m, _ = m.Update(key("q"))
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, "Cancelling...", m.(Progress).status)
}

func TestConfidenceBadge(t *testing.T) {
	assert.Contains(t, ConfidenceBadge(compat.Effective{Tag: "v1.20", Confidence: compat.RangeFallback}), "v1.20 (range-fallback)")
	assert.Contains(t, ConfidenceBadge(compat.Effective{}), "unknown game version")
}
