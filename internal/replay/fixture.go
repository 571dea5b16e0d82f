package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/catalog"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a recorded
// browsing session plus the configuration it ran under.
type Fixture struct {
	Description string            `json:"description"`
	Epoch       int64             `json:"epoch"` // unix seconds; step offsets are relative to this
	Settings    map[string]string `json:"settings"`
	Matrix      classify.Matrix   `json:"matrix"`
	Catalog     *catalog.Bundle   `json:"catalog"`
	Steps       []Step            `json:"steps"`
	Expected    []Expected        `json:"expected,omitempty"`
}

// Step is one recorded browsing interaction. Kind selects which fields are
// meaningful.
type Step struct {
	Kind string `json:"kind"` // page | focus | blur | idle | outcome | surveys | settings | erase
	At   int64  `json:"at"`   // seconds after the fixture epoch

	Words    []string          `json:"words,omitempty"`    // page
	AdID     string            `json:"ad_id,omitempty"`    // outcome
	Outcome  string            `json:"outcome,omitempty"`  // outcome: clicked | closed | ignored
	Surveys  []state.Survey    `json:"surveys,omitempty"`  // surveys
	Settings map[string]string `json:"settings,omitempty"` // settings
}

// Expected pins the outcome of one step for scenario verification.
type Expected struct {
	Step   int    `json:"step"` // index into Steps
	Served bool   `json:"served"`
	Reason string `json:"reason,omitempty"`
	AdID   string `json:"ad_id,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("fixture %s: no steps", path)
	}
	return &f, nil
}

// #endregion fixture-loader
