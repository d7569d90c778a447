/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const presetYAML = `
sessions:
  - name: Standup
    queues: [Questions, Comments]
  - name: Retro
    queues:
      - Went well
      - To improve
`

func TestParsePresets(t *testing.T) {
	got, err := parsePresets([]byte(presetYAML))
	if err != nil {
		t.Fatal(err)
	}

	want := []Preset{
		{Name: "Standup", Queues: []string{"Questions", "Comments"}},
		{Name: "Retro", Queues: []string{"Went well", "To improve"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("presets mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePresetsErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknown field", "sessions:\n  - name: A\n    queue: [x]\n"},
		{"no queues", "sessions:\n  - name: A\n"},
		{"not yaml", "sessions: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parsePresets([]byte(tt.in)); err == nil {
				t.Error("parsePresets succeeded, want error")
			}
		})
	}
}

func TestParsePresetsEmpty(t *testing.T) {
	got, err := parsePresets(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("presets = %v, want none", got)
	}
}

func TestApplyPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	if err := os.WriteFile(path, []byte(presetYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	presets, err := loadPresets(path)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := newTestServer(t, testConfig())
	if err := a.applyPresets(presets); err != nil {
		t.Fatal(err)
	}

	if got := a.registry.Len(); got != 2 {
		t.Errorf("registry len = %d, want 2", got)
	}
	if got := testutil.ToFloat64(a.metrics.sessionsActive); got != 2 {
		t.Errorf("sessions active = %v, want 2", got)
	}
}

func TestApplyPresetsInvalid(t *testing.T) {
	a, _ := newTestServer(t, testConfig())

	err := a.applyPresets([]Preset{{Name: "Blank", Queues: []string{" "}}})
	if err == nil {
		t.Fatal("applyPresets succeeded, want error")
	}
}
