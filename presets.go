/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset describes a session created at startup.
type Preset struct {
	Name   string   `yaml:"name"`
	Queues []string `yaml:"queues"`
}

type presetFile struct {
	Sessions []Preset `yaml:"sessions"`
}

func loadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}

	return parsePresets(data)
}

func parsePresets(data []byte) ([]Preset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f presetFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse presets: %w", err)
	}

	for i, p := range f.Sessions {
		if len(p.Queues) == 0 {
			return nil, fmt.Errorf("preset %d (%q): no queues", i, p.Name)
		}
	}

	return f.Sessions, nil
}

// applyPresets creates one session per preset and logs where to reach it.
func (a *app) applyPresets(presets []Preset) error {
	for _, p := range presets {
		s, err := a.createSession(p.Name, p.Queues)
		if err != nil {
			return fmt.Errorf("preset %q: %w", p.Name, err)
		}

		a.log.Info("created preset session",
			"name", s.Name(),
			"guest", a.guestPath(s),
			"admin", a.adminPath(s),
		)
	}

	return nil
}
