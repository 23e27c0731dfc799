package diff

import (
	"fmt"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
)

const (
	StrategyField = "field"
	StrategyHash  = "hash"
)

// New returns the differ for the named strategy.
func New(strategy string) (domain.Differ, error) {
	switch strategy {
	case "", StrategyField:
		return NewFieldDiffer(), nil
	case StrategyHash:
		return NewHashDiffer(), nil
	default:
		return nil, fmt.Errorf("unknown diff strategy %q", strategy)
	}
}
