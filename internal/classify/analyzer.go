// Package classify implements the deterministic first tier of order
// detection: a curated, category-labelled regular-expression bank with an
// exclusion list in front of it. Matching is read-only after construction
// and safe for concurrent use without locking.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/orderscout/orderscout/internal/types"
)

// AcceptanceFloor is the minimum confidence for a pattern match to be
// returned to the caller. A match at exactly the floor is accepted.
const AcceptanceFloor = 0.80

// Detection is a candidate classification produced by the pattern bank.
type Detection struct {
	Category   types.Category
	Confidence float64
	Method     types.DetectionMethod
	Pattern    string // name of the winning bank entry
	Matched    string // substring the winning pattern matched
}

type compiledPattern struct {
	re         *regexp.Regexp
	name       string
	confidence float64
}

// Analyzer evaluates message text against the compiled pattern bank.
// Construct once at startup; Analyze holds no mutable state.
type Analyzer struct {
	patterns   map[types.Category][]compiledPattern
	exclusions []*regexp.Regexp
	logger     zerolog.Logger
}

// NewAnalyzer compiles the full bank and exclusion list. A pattern that
// fails to compile is a programming error and aborts construction.
func NewAnalyzer(logger zerolog.Logger) (*Analyzer, error) {
	a := &Analyzer{
		patterns: make(map[types.Category][]compiledPattern),
		logger:   logger.With().Str("component", "pattern_matcher").Logger(),
	}

	total := 0
	for category, bank := range PatternBank() {
		compiled := make([]compiledPattern, 0, len(bank))
		for _, p := range bank {
			re, err := regexp.Compile(`(?im)` + p.Expr)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %s/%s: %w", category, p.Name, err)
			}
			compiled = append(compiled, compiledPattern{re: re, name: p.Name, confidence: p.Confidence})
			total++
		}
		a.patterns[category] = compiled
	}

	for _, expr := range ExclusionPatterns {
		re, err := regexp.Compile(`(?im)` + expr)
		if err != nil {
			return nil, fmt.Errorf("compile exclusion pattern %q: %w", expr, err)
		}
		a.exclusions = append(a.exclusions, re)
	}

	a.logger.Info().
		Int("categories", len(a.patterns)).
		Int("patterns", total).
		Int("exclusions", len(a.exclusions)).
		Msg("Pattern bank compiled")

	return a, nil
}

// Analyze returns the highest-confidence candidate for text, or nil when
// nothing crosses the acceptance floor.
//
// Contract:
//   - text shorter than 3 characters after trimming returns nil
//   - any exclusion match vetoes detection regardless of bank matches
//   - ties between patterns resolve to whichever was evaluated first;
//     evaluation order is not part of the contract
func (a *Analyzer) Analyze(text string) *Detection {
	if len([]rune(strings.TrimSpace(text))) < 3 {
		return nil
	}

	for _, ex := range a.exclusions {
		if ex.MatchString(text) {
			a.logger.Debug().Str("text", Truncate(text, 50)).Msg("Message vetoed by exclusion pattern")
			return nil
		}
	}

	var best *Detection
	for category, bank := range a.patterns {
		for _, p := range bank {
			loc := p.re.FindString(text)
			if loc == "" {
				continue
			}
			if best == nil || p.confidence > best.Confidence {
				best = &Detection{
					Category:   category,
					Confidence: p.confidence,
					Method:     types.DetectedByRegex,
					Pattern:    p.name,
					Matched:    loc,
				}
			}
		}
	}

	if best == nil || best.Confidence < AcceptanceFloor {
		return nil
	}

	a.logger.Debug().
		Str("category", string(best.Category)).
		Float64("confidence", best.Confidence).
		Str("pattern", best.Pattern).
		Msg("Order detected by pattern bank")

	return best
}
