package conversation

import (
	"context"

	"github.com/contextd/contextd/internal/infrastructure/logger"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// ===============================================
// Turn Accounting
// ===============================================

// A turn is one real user item plus every subsequent non-user item up to
// (but excluding) the next real user item. Leading non-user items (system
// prompts, assistant greetings) attach to turn 0 and are never separated
// from it. Synthetic items never open a turn.

const (
	// DefaultMaxTurns is the retained-turn budget when the caller does not
	// configure one.
	DefaultMaxTurns = 20
)

// CountTurns returns the number of turns in the ordered item list.
func CountTurns(items []*Item) int {
	count := 0
	for _, item := range items {
		if item.IsUserTurn() {
			count++
		}
	}
	return count
}

// TrimCutoff computes the index of the first retained item when trimming the
// ordered list to maxTurns turns. The second return is false when the list is
// already within budget (including the zero-user-turn case, where no turn
// boundary exists to cut at).
func TrimCutoff(items []*Item, maxTurns int) (int, bool) {
	if maxTurns <= 0 {
		return 0, false
	}

	// Scan backward collecting real user items. The cut lands on the
	// earliest retained user item, but only once a further user item is
	// seen before it: leading non-user items belong to turn 0 and travel
	// with the first real turn, so a list holding exactly maxTurns turns
	// is never cut.
	collected := 0
	cut := 0
	for i := len(items) - 1; i >= 0; i-- {
		if !items[i].IsUserTurn() {
			continue
		}
		collected++
		if collected == maxTurns {
			cut = i
		}
		if collected > maxTurns {
			return cut, true
		}
	}
	return 0, false
}

// Trim returns the sub-sequence of items retaining at most maxTurns turns,
// dropping whole turns from the front. It is a pure function of its inputs:
// idempotent on lists within budget and monotonic (never grows the list).
// A non-positive maxTurns is a configuration error, never silently clamped.
func Trim(ctx context.Context, items []*Item, maxTurns int) ([]*Item, error) {
	if maxTurns <= 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInvalidConfig, "turn budget must be positive", nil,
			"9f7a2c41-3b8e-4d15-a6f2-58c0d91e7b24")
	}

	cut, ok := TrimCutoff(items, maxTurns)
	if !ok {
		return items, nil
	}

	log := logger.ForComponent("turns")
	log.Debug().
		Int("dropped_items", cut).
		Int("retained_items", len(items)-cut).
		Int("max_turns", maxTurns).
		Msg("trimmed conversation to turn budget")

	return items[cut:], nil
}

// TrimPolicy is the caller-configurable trimming behavior.
type TrimPolicy struct {
	MaxTurns    int
	TrimOnWrite bool // Physically remove over-budget items after each append
	TrimOnRead  bool // Trim the returned view on every read
	Summarize   bool // Replace trimmed items with a synthetic summary instead of dropping
}

// DefaultTrimPolicy enables both enforcement points with the default budget.
func DefaultTrimPolicy() TrimPolicy {
	return TrimPolicy{
		MaxTurns:    DefaultMaxTurns,
		TrimOnWrite: true,
		TrimOnRead:  true,
	}
}

// Validate rejects non-positive budgets when any enforcement is enabled.
func (p TrimPolicy) Validate(ctx context.Context) error {
	if (p.TrimOnWrite || p.TrimOnRead) && p.MaxTurns <= 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInvalidConfig, "turn budget must be positive", nil,
			"5d1e8f30-72aa-4c96-b3e7-0c64f1a9d852")
	}
	return nil
}
