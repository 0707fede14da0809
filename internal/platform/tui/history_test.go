package tui

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/pixelbox/internal/storage"
)

func TestHistoryEmpty(t *testing.T) {
	m := NewHistoryModel(nil, 100, 30)
	if m.Source() != "" {
		t.Errorf("Source() = %q, expected all sources", m.Source())
	}
	if !strings.Contains(m.View(), "No runs recorded yet") {
		t.Error("View() does not show the empty message")
	}
}

func TestHistorySources(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := []storage.RunRecord{
		{Source: "snake", Engine: "js", Frames: 90, StartedAt: start, EndedAt: start.Add(3 * time.Second)},
		{Source: "bounce", Engine: "js", Frames: 10, Error: "update error: boom", StartedAt: start.Add(time.Minute), EndedAt: start.Add(time.Minute + time.Second)},
		{Source: "snake", Engine: "js", Frames: 30, StartedAt: start.Add(2 * time.Minute), EndedAt: start.Add(2*time.Minute + time.Second)},
	}
	for _, r := range runs {
		if _, err := store.RecordRun(r); err != nil {
			t.Fatalf("RecordRun() failed: %v", err)
		}
	}

	var model tea.Model = NewHistoryModel(store, 120, 40)
	m := model.(HistoryModel)
	if len(m.runs) != 3 {
		t.Fatalf("got %d runs, expected 3", len(m.runs))
	}
	// Newest source first
	if expected := []string{"", "snake", "bounce"}; strings.Join(m.sources, ",") != strings.Join(expected, ",") {
		t.Errorf("sources = %q, expected %q", m.sources, expected)
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = model.(HistoryModel)
	if m.Source() != "snake" {
		t.Fatalf("Source() = %q, expected %q", m.Source(), "snake")
	}
	if len(m.runs) != 2 {
		t.Errorf("got %d snake runs, expected 2", len(m.runs))
	}
	if m.stats == nil || m.stats.MaxFrames != 90 {
		t.Errorf("stats = %+v, expected best of 90 frames", m.stats)
	}
	if !strings.Contains(m.View(), "RUN HISTORY - snake") {
		t.Error("View() does not name the selected source")
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = model.(HistoryModel)
	if m.Source() != "bounce" {
		t.Errorf("Source() = %q, expected %q after wrapping", m.Source(), "bounce")
	}
	if m.stats == nil || m.stats.Failures != 1 {
		t.Errorf("stats = %+v, expected one failure", m.stats)
	}
}
