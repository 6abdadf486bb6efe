package digest

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// StrategyKind discriminates the closed set of selection rules.
type StrategyKind int

const (
	// TopN selects the N highest-scoring items.
	TopN StrategyKind = iota + 1
	// PointThreshold selects every item at or above a score threshold.
	PointThreshold
)

const (
	topNPrefix      = "TOP_N#"
	thresholdPrefix = "POINT_THRESHOLD#"
)

// Strategy is one selection rule with its parameter. The zero value is
// invalid; construct via TopNStrategy, ThresholdStrategy or a parse.
type Strategy struct {
	Kind  StrategyKind
	Value int
}

// TopNStrategy returns the top-N rule for n.
func TopNStrategy(n int) Strategy {
	return Strategy{Kind: TopN, Value: n}
}

// ThresholdStrategy returns the point-threshold rule for t.
func ThresholdStrategy(t int) Strategy {
	return Strategy{Kind: PointThreshold, Value: t}
}

// String returns the canonical "KIND#value" form. It round-trips through
// ParseStrategy losslessly.
func (s Strategy) String() string {
	switch s.Kind {
	case TopN:
		return topNPrefix + strconv.Itoa(s.Value)
	case PointThreshold:
		return thresholdPrefix + strconv.Itoa(s.Value)
	default:
		return fmt.Sprintf("UNKNOWN#%d", s.Value)
	}
}

// Description returns human-readable copy for email text.
func (s Strategy) Description() string {
	switch s.Kind {
	case TopN:
		return fmt.Sprintf("the top %d posts of the day", s.Value)
	case PointThreshold:
		return fmt.Sprintf("all posts with %d+ points", s.Value)
	default:
		return "an unknown selection"
	}
}

// Select applies the rule to items, which must already be sorted by score
// descending. TopN keeps the first N; PointThreshold keeps everything at or
// above the threshold.
func (s Strategy) Select(items []Item) []Item {
	switch s.Kind {
	case TopN:
		n := min(s.Value, len(items))
		return slices.Clone(items[:n])
	case PointThreshold:
		var selected []Item
		for _, item := range items {
			if item.Score >= s.Value {
				selected = append(selected, item)
			}
		}
		return selected
	default:
		return nil
	}
}

// MarshalText encodes the canonical string form (used by the JSON codec).
func (s Strategy) MarshalText() ([]byte, error) {
	if s.Kind != TopN && s.Kind != PointThreshold {
		return nil, fmt.Errorf("cannot encode unknown strategy kind %d", s.Kind)
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes the canonical string form. It validates syntax only;
// membership in the configured set is enforced by StrategySet.Parse at the
// request boundary.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStrategy parses the canonical "KIND#value" form without checking the
// configured value set.
func ParseStrategy(raw string) (Strategy, error) {
	switch {
	case strings.HasPrefix(raw, topNPrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(raw, topNPrefix))
		if err != nil {
			return Strategy{}, fmt.Errorf("invalid TOP_N value in %q: %w", raw, err)
		}
		return TopNStrategy(n), nil
	case strings.HasPrefix(raw, thresholdPrefix):
		t, err := strconv.Atoi(strings.TrimPrefix(raw, thresholdPrefix))
		if err != nil {
			return Strategy{}, fmt.Errorf("invalid POINT_THRESHOLD value in %q: %w", raw, err)
		}
		return ThresholdStrategy(t), nil
	default:
		return Strategy{}, fmt.Errorf("invalid strategy format: %q", raw)
	}
}

// StrategySet is the fixed, configured set of strategies the service runs.
// It backs both request validation and the daily digest fan-out.
type StrategySet struct {
	topN       []int
	thresholds []int
}

// NewStrategySet validates the configured values once at startup.
func NewStrategySet(topN, thresholds []int) (StrategySet, error) {
	if len(topN) == 0 && len(thresholds) == 0 {
		return StrategySet{}, fmt.Errorf("at least one strategy value must be configured")
	}
	for _, n := range topN {
		if n <= 0 {
			return StrategySet{}, fmt.Errorf("TOP_N values must be positive, got %d", n)
		}
	}
	for _, t := range thresholds {
		if t <= 0 {
			return StrategySet{}, fmt.Errorf("POINT_THRESHOLD values must be positive, got %d", t)
		}
	}
	return StrategySet{topN: slices.Clone(topN), thresholds: slices.Clone(thresholds)}, nil
}

// All returns every configured strategy, top-N values first.
func (ss StrategySet) All() []Strategy {
	all := make([]Strategy, 0, len(ss.topN)+len(ss.thresholds))
	for _, n := range ss.topN {
		all = append(all, TopNStrategy(n))
	}
	for _, t := range ss.thresholds {
		all = append(all, ThresholdStrategy(t))
	}
	return all
}

// Contains reports whether s is one of the configured strategies.
func (ss StrategySet) Contains(s Strategy) bool {
	switch s.Kind {
	case TopN:
		return slices.Contains(ss.topN, s.Value)
	case PointThreshold:
		return slices.Contains(ss.thresholds, s.Value)
	default:
		return false
	}
}

// Parse parses the canonical form and rejects values outside the configured
// set. This is the parse used for anything arriving from a request.
func (ss StrategySet) Parse(raw string) (Strategy, error) {
	s, err := ParseStrategy(raw)
	if err != nil {
		return Strategy{}, err
	}
	if !ss.Contains(s) {
		switch s.Kind {
		case TopN:
			return Strategy{}, fmt.Errorf("invalid TOP_N value %d, valid values are %v", s.Value, ss.topN)
		default:
			return Strategy{}, fmt.Errorf("invalid POINT_THRESHOLD value %d, valid values are %v", s.Value, ss.thresholds)
		}
	}
	return s, nil
}

// MaxTopN returns the largest configured N, or 0 if none are configured.
func (ss StrategySet) MaxTopN() int {
	if len(ss.topN) == 0 {
		return 0
	}
	return slices.Max(ss.topN)
}

// MinThreshold returns the smallest configured threshold, or 0 if none are
// configured.
func (ss StrategySet) MinThreshold() int {
	if len(ss.thresholds) == 0 {
		return 0
	}
	return slices.Min(ss.thresholds)
}
