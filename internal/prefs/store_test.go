package prefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.yaml"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Bool(OnboardingCompleted) {
		t.Error("unset key should read false")
	}
}

func TestSetBool_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetBool(OnboardingCompleted, true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	if !s.Bool(OnboardingCompleted) {
		t.Error("value not visible in memory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "onboardingCompleted: true") {
		t.Errorf("file content = %q", data)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.Bool(OnboardingCompleted) {
		t.Error("value not persisted")
	}
}

func TestSetBool_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "prefs.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []bool{true, false, true} {
		if err := s.SetBool("gridVisible", v); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir holds %d entries, want only prefs.yaml", len(entries))
	}
}

func TestSetBool_FailureKeepsPreviousValue(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "missing-dir", "prefs.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetBool(OnboardingCompleted, true); err == nil {
		t.Fatal("expected write error for missing directory")
	}
	if s.Bool(OnboardingCompleted) {
		t.Error("failed write must not change the in-memory value")
	}
}

func TestOpen_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("onboardingCompleted: [nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetBool("x", true); err != nil {
		t.Fatalf("SetBool on empty file: %v", err)
	}
}
