// Package ingestion turns raw sources into the ordered event stream the
// accounting engine consumes: log decoding, manual correction injection and
// deterministic ordering.
package ingestion

import (
	"errors"
	"sort"

	"pool-ledger-lab/internal/domain"
)

// ErrInvalidOrdering is returned when events are not properly ordered.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// SortEvents orders events by (blockNumber ASC, logIndex ASC, tokenIndex ASC).
// This provides deterministic ordering based on blockchain order.
func SortEvents(events []*domain.LiquidityChangeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareEvents(events[i], events[j]) < 0
	})
}

// ValidateEventOrdering checks if events are properly ordered.
// Returns ErrInvalidOrdering if not.
func ValidateEventOrdering(events []*domain.LiquidityChangeEvent) error {
	for i := 1; i < len(events); i++ {
		if compareEvents(events[i-1], events[i]) > 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (blockNumber ASC, logIndex ASC, tokenIndex ASC)
func compareEvents(a, b *domain.LiquidityChangeEvent) int {
	if a.BlockNum != b.BlockNum {
		if a.BlockNum < b.BlockNum {
			return -1
		}
		return 1
	}
	if a.LogIndex != b.LogIndex {
		if a.LogIndex < b.LogIndex {
			return -1
		}
		return 1
	}
	if a.TokenIndex != b.TokenIndex {
		if a.TokenIndex < b.TokenIndex {
			return -1
		}
		return 1
	}
	return 0
}
