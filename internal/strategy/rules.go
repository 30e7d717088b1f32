// Package strategy labels a chain's opening leg set with a strategy kind
// using a data-driven decision table. Rules are loaded from JSON so
// recognition stays externally editable without code changes; the embedded
// default table covers the common single-leg through four-leg shapes.
package strategy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

//go:embed rules.json
var defaultRulesJSON []byte

// Rule is one pattern matcher in the decision table. Nil fields are
// wildcards. Rules are evaluated in file order, most specific first; the
// first match wins.
type Rule struct {
	Label string `json:"label"`

	OptionLegs   *int `json:"option_legs,omitempty"`
	StockLegs    *int `json:"stock_legs,omitempty"`
	Calls        *int `json:"calls,omitempty"`
	Puts         *int `json:"puts,omitempty"`
	ShortOptions *int `json:"short_options,omitempty"`
	LongOptions  *int `json:"long_options,omitempty"`

	DistinctStrikes     *int `json:"distinct_strikes,omitempty"`
	DistinctExpirations *int `json:"distinct_expirations,omitempty"`

	// SameOptionType requires every option leg to share one type.
	SameOptionType *bool `json:"same_option_type,omitempty"`

	// StockDirection constrains the stock leg sign: "long" or "short".
	StockDirection string `json:"stock_direction,omitempty"`

	// WingSpacing applies to three-strike shapes: "even" or "uneven".
	WingSpacing string `json:"wing_spacing,omitempty"`

	// ShortStrike places the short leg's strike relative to the long leg's:
	// "above_long" or "below_long". It only matches one-short, one-long
	// spreads, which is how vertical direction is read.
	ShortStrike string `json:"short_strike,omitempty"`

	// RequireCoverage gates the rule on long stock coverage existing in the
	// account (the covered call lookback).
	RequireCoverage bool `json:"require_coverage,omitempty"`
}

// Validate checks a rule for obvious misconfiguration.
func (r *Rule) Validate() error {
	if r.Label == "" {
		return fmt.Errorf("rule missing label")
	}
	switch r.StockDirection {
	case "", "long", "short":
	default:
		return fmt.Errorf("rule %q: stock_direction must be long or short", r.Label)
	}
	switch r.WingSpacing {
	case "", "even", "uneven":
	default:
		return fmt.Errorf("rule %q: wing_spacing must be even or uneven", r.Label)
	}
	switch r.ShortStrike {
	case "", "above_long", "below_long":
	default:
		return fmt.Errorf("rule %q: short_strike must be above_long or below_long", r.Label)
	}
	return nil
}

// LoadRules decodes a rule table from JSON.
func LoadRules(rd io.Reader) ([]Rule, error) {
	var doc struct {
		Rules []Rule `json:"rules"`
	}
	dec := json.NewDecoder(rd)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing strategy rules: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("strategy rules file contains no rules")
	}
	for i := range doc.Rules {
		if err := doc.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return doc.Rules, nil
}

// LoadRulesFile loads a rule table from a file path.
func LoadRulesFile(path string) ([]Rule, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the user's config
	if err != nil {
		return nil, fmt.Errorf("opening strategy rules: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// DefaultRules returns the embedded default decision table.
func DefaultRules() []Rule {
	var doc struct {
		Rules []Rule `json:"rules"`
	}
	if err := json.Unmarshal(defaultRulesJSON, &doc); err != nil {
		// The embedded table is validated by tests; this is unreachable in a
		// correctly built binary.
		panic(fmt.Sprintf("strategy: embedded rules invalid: %v", err))
	}
	return doc.Rules
}
