package tuning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// #region fixture-types

// Fixture is a recorded set of routing decisions plus the expected tuning
// outcome, used as a regression baseline for the replay.
type Fixture struct {
	Description     string          `json:"description" yaml:"description"`
	FastShareTarget float64         `json:"fast_share_target" yaml:"fast_share_target"`
	Candidates      []float64       `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Samples         []Sample        `json:"samples" yaml:"samples"`
	Expected        FixtureExpected `json:"expected" yaml:"expected"`
}

// FixtureExpected captures the expected recommendation.
type FixtureExpected struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Met       bool    `json:"met" yaml:"met"`
}

// Options converts the fixture's knobs to Analyze options.
func (f *Fixture) Options() Options {
	return Options{Candidates: f.Candidates, FastShareTarget: f.FastShareTarget}
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads a fixture file. Files ending in .json are parsed as JSON,
// everything else as YAML.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as YAML, so a recorded session can be frozen as a baseline.
func WriteFixture(path string, f *Fixture) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-loader
