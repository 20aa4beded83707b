// Package achievements implements the achievement evaluator: a monotone
// per-(leaderboard, player) unlock state machine driven by a static
// definition table loaded once at startup.
package achievements

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConditionKind names the observed value an achievement's threshold is
// tested against.
type ConditionKind string

const (
	ConditionScoreThreshold       ConditionKind = "score_threshold"
	ConditionRankThreshold        ConditionKind = "rank_threshold"
	ConditionGamesPlayedThreshold ConditionKind = "games_played_threshold"
)

// Definition is one static achievement. Loaded at startup, read-only
// thereafter.
type Definition struct {
	ID          string        `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Condition   ConditionKind `yaml:"condition" json:"condition"`
	Threshold   int64         `yaml:"threshold" json:"threshold"`
	Points      int64         `yaml:"points" json:"points"`
}

// Validate checks a single definition.
func (d Definition) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	switch d.Condition {
	case ConditionScoreThreshold, ConditionRankThreshold, ConditionGamesPlayedThreshold:
	default:
		return fmt.Errorf("%w: %q (achievement %s)", ErrUnknownCondition, d.Condition, d.ID)
	}
	if d.Condition == ConditionRankThreshold && d.Threshold < 1 {
		return fmt.Errorf("%w: rank threshold must be >= 1 (achievement %s)", ErrInvalidThreshold, d.ID)
	}
	return nil
}

// Defaults returns the built-in achievement table. Slice order is the
// deterministic evaluation and emission order.
func Defaults() []Definition {
	return []Definition{
		{ID: "first_score", Name: "First Steps", Description: "Score your first points!", Condition: ConditionScoreThreshold, Threshold: 1, Points: 50},
		{ID: "bronze_league", Name: "Bronze League", Description: "Reach 1000 points!", Condition: ConditionScoreThreshold, Threshold: 1000, Points: 100},
		{ID: "silver_league", Name: "Silver League", Description: "Reach 2500 points!", Condition: ConditionScoreThreshold, Threshold: 2500, Points: 200},
		{ID: "gold_league", Name: "Gold League", Description: "Reach 5000 points!", Condition: ConditionScoreThreshold, Threshold: 5000, Points: 300},
		{ID: "top_10", Name: "Elite Player", Description: "Reach top 10!", Condition: ConditionRankThreshold, Threshold: 10, Points: 150},
		{ID: "top_3", Name: "Podium Finisher", Description: "Reach top 3!", Condition: ConditionRankThreshold, Threshold: 3, Points: 250},
		{ID: "champion", Name: "Champion!", Description: "Reach #1 rank!", Condition: ConditionRankThreshold, Threshold: 1, Points: 500},
		{ID: "veteran", Name: "Veteran Player", Description: "Play 50 games!", Condition: ConditionGamesPlayedThreshold, Threshold: 50, Points: 200},
	}
}

// definitionFile is the YAML layout of an achievement definition file.
type definitionFile struct {
	Version      int          `yaml:"version"`
	Achievements []Definition `yaml:"achievements"`
}

// LoadFile reads a versioned achievement definition file. File order is
// preserved as the evaluation order. Errors here are fatal at startup;
// changing definitions at runtime requires a restart.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read achievement definitions %s: %w", path, err)
	}

	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse achievement definitions %s: %w", path, err)
	}
	if len(file.Achievements) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDefinitions, path)
	}

	seen := make(map[string]bool, len(file.Achievements))
	for _, def := range file.Achievements {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, def.ID)
		}
		seen[def.ID] = true
	}

	return file.Achievements, nil
}
