package strategy

import (
	"math"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

// ComplexStrategyLabel is returned when no rule matches.
const ComplexStrategyLabel = "Complex Strategy"

// Leg is the classifier's view of one opening leg: instrument shape and
// signed quantity, nothing more.
type Leg struct {
	Instrument models.InstrumentType
	OptionType models.OptionType
	Strike     float64
	Expiration time.Time
	Quantity   float64
}

// Context carries the inventory facts a rule may need beyond the leg set.
type Context struct {
	// CoverageRatio is available long stock shares divided by the shares
	// equivalent of the short calls, at classification time.
	CoverageRatio float64
	// MinCoverageRatio is the configured threshold; zero means any nonzero
	// coverage qualifies.
	MinCoverageRatio float64
}

// Classifier evaluates a rule table against opening leg sets.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over the given rules, evaluated in
// order.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// legFeatures are the derived facts rules match against.
type legFeatures struct {
	optionLegs, stockLegs     int
	calls, puts               int
	shortOptions, longOptions int
	distinctStrikes           int
	distinctExpirations       int
	shortStrike, longStrike   float64
	sameOptionType            bool
	stockLong, stockShort     bool
	wingSpacingEven           bool
	threeStrikes              bool
}

// Classify returns the label of the first rule matching the leg set, or the
// complex fallback.
func (c *Classifier) Classify(legs []Leg, ctx Context) string {
	f := computeFeatures(legs)
	for i := range c.rules {
		if c.rules[i].matches(&f, ctx) {
			return c.rules[i].Label
		}
	}
	return ComplexStrategyLabel
}

func computeFeatures(legs []Leg) legFeatures {
	var f legFeatures
	strikes := make(map[float64]bool)
	expirations := make(map[time.Time]bool)
	var firstType models.OptionType
	f.sameOptionType = true
	var strikeList []float64

	for _, leg := range legs {
		if leg.Instrument != models.InstrumentEquityOption {
			f.stockLegs++
			if leg.Quantity > 0 {
				f.stockLong = true
			} else {
				f.stockShort = true
			}
			continue
		}
		f.optionLegs++
		if leg.OptionType == models.OptionTypeCall {
			f.calls++
		} else {
			f.puts++
		}
		if leg.Quantity < 0 {
			f.shortOptions++
			f.shortStrike = leg.Strike
		} else {
			f.longOptions++
			f.longStrike = leg.Strike
		}
		if firstType == "" {
			firstType = leg.OptionType
		} else if leg.OptionType != firstType {
			f.sameOptionType = false
		}
		if !strikes[leg.Strike] {
			strikes[leg.Strike] = true
			strikeList = append(strikeList, leg.Strike)
		}
		expirations[leg.Expiration.UTC().Truncate(24*time.Hour)] = true
	}
	f.distinctStrikes = len(strikes)
	f.distinctExpirations = len(expirations)

	if len(strikeList) == 3 {
		f.threeStrikes = true
		sortFloats(strikeList)
		lower := strikeList[1] - strikeList[0]
		upper := strikeList[2] - strikeList[1]
		f.wingSpacingEven = math.Abs(lower-upper) < 1e-6
	}
	return f
}

func sortFloats(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

func (r *Rule) matches(f *legFeatures, ctx Context) bool {
	if !intMatch(r.OptionLegs, f.optionLegs) ||
		!intMatch(r.StockLegs, f.stockLegs) ||
		!intMatch(r.Calls, f.calls) ||
		!intMatch(r.Puts, f.puts) ||
		!intMatch(r.ShortOptions, f.shortOptions) ||
		!intMatch(r.LongOptions, f.longOptions) ||
		!intMatch(r.DistinctStrikes, f.distinctStrikes) ||
		!intMatch(r.DistinctExpirations, f.distinctExpirations) {
		return false
	}
	if r.SameOptionType != nil && *r.SameOptionType != f.sameOptionType {
		return false
	}
	switch r.StockDirection {
	case "long":
		if !f.stockLong || f.stockShort {
			return false
		}
	case "short":
		if !f.stockShort || f.stockLong {
			return false
		}
	}
	switch r.WingSpacing {
	case "even":
		if !f.threeStrikes || !f.wingSpacingEven {
			return false
		}
	case "uneven":
		if !f.threeStrikes || f.wingSpacingEven {
			return false
		}
	}
	// The short/long strike relation is only defined for one-by-one spreads.
	switch r.ShortStrike {
	case "above_long":
		if f.shortOptions != 1 || f.longOptions != 1 || f.shortStrike <= f.longStrike {
			return false
		}
	case "below_long":
		if f.shortOptions != 1 || f.longOptions != 1 || f.shortStrike >= f.longStrike {
			return false
		}
	}
	if r.RequireCoverage {
		if ctx.CoverageRatio <= 0 {
			return false
		}
		if ctx.MinCoverageRatio > 0 && ctx.CoverageRatio < ctx.MinCoverageRatio {
			return false
		}
	}
	return true
}

func intMatch(want *int, got int) bool {
	return want == nil || *want == got
}
