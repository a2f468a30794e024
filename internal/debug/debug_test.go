package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func withOutput(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(lvl)
	t.Cleanup(func() {
		Init(LevelOff)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := withOutput(t, LevelLive)

	Info("session %s", "started")
	Live("zoom %.1f", 2.0)
	Verbose("should not appear")
	Trace("nor this")

	got := buf.String()
	if !strings.Contains(got, "session started") {
		t.Errorf("info message missing: %q", got)
	}
	if !strings.Contains(got, "zoom 2.0") {
		t.Errorf("live message missing: %q", got)
	}
	if strings.Contains(got, "should not appear") || strings.Contains(got, "nor this") {
		t.Errorf("messages above level leaked: %q", got)
	}
}

func TestOffProducesNothing(t *testing.T) {
	buf := withOutput(t, LevelOff)
	Info("hidden")
	Error(errors.New("hidden too"))
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestIsEnabled(t *testing.T) {
	withOutput(t, LevelVerbose)
	if !IsEnabled(LevelInfo) || !IsEnabled(LevelVerbose) {
		t.Error("levels up to verbose should be enabled")
	}
	if IsEnabled(LevelTrace) {
		t.Error("trace should be disabled at verbose")
	}
}

func TestLoggerDiscardsWhenOff(t *testing.T) {
	withOutput(t, LevelOff)
	if Logger() == nil {
		t.Fatal("Logger must never return nil")
	}
	Logger().Info("dropped")
}

func TestStructuredHelpers(t *testing.T) {
	buf := withOutput(t, LevelTrace)
	Param("zoom", 1, 2)
	Transition("session", "Idle", "Configuring")
	GPIO("WritePin", 17, true)
	Lock("back-0", true)

	got := buf.String()
	for _, want := range []string{"param=zoom", "from=Idle", "to=Configuring", "pin=17", "device=back-0"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %q", want, got)
		}
	}
}
