package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeyProfile controls how one telemetry key is shown.
type KeyProfile struct {
	Key    string `yaml:"key"`
	Label  string `yaml:"label"`  // display name, defaults to Key
	Format string `yaml:"format"` // fmt verb applied to numeric values, e.g. "%.2f"
	Unit   string `yaml:"unit"`
	Hidden bool   `yaml:"hidden"`
	Graph  bool   `yaml:"graph"` // plot history instead of text; numeric types only
}

// DisplayName returns Label, or Key when no label is set.
func (p *KeyProfile) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Key
}

// ProfileTable provides lookup of key display settings.
type ProfileTable struct {
	keys map[string]*KeyProfile
}

// NewProfileTable builds a table from entries. Later duplicates win.
func NewProfileTable(entries []KeyProfile) *ProfileTable {
	t := &ProfileTable{keys: make(map[string]*KeyProfile, len(entries))}
	for i := range entries {
		e := &entries[i]
		t.keys[e.Key] = e
	}
	return t
}

// LoadProfileTable loads a key profile YAML list.
func LoadProfileTable(path string) (*ProfileTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key profile: %w", err)
	}
	var entries []KeyProfile
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse key profile: %w", err)
	}
	for i, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("key profile entry %d: empty key", i)
		}
	}
	return NewProfileTable(entries), nil
}

// Get returns the profile for key, or nil if none. A nil table has no
// entries.
func (t *ProfileTable) Get(key string) *KeyProfile {
	if t == nil {
		return nil
	}
	return t.keys[key]
}

// Count returns the number of profiled keys.
func (t *ProfileTable) Count() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}
