// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// UnlimitedBudgetSentinel is the budget parameter value at or above which a
// run acquires without limit.
const UnlimitedBudgetSentinel = 1000

// Budget tracks the global item budget of one acquisition run. A nil Limit
// means unlimited. Consumed never exceeds *Limit.
type Budget struct {
	Limit    *int `json:"limit,omitempty" yaml:"limit,omitempty"`
	Consumed int  `json:"consumed" yaml:"consumed"`
}

// NewBudget converts a budget parameter into a Budget. Values at or above
// UnlimitedBudgetSentinel, and non-positive values, mean unlimited.
func NewBudget(param int) Budget {
	if param <= 0 || param >= UnlimitedBudgetSentinel {
		return Budget{}
	}
	limit := param
	return Budget{Limit: &limit}
}

// Unlimited reports whether the budget has no limit.
func (b Budget) Unlimited() bool {
	return b.Limit == nil
}

// Remaining returns how many items may still be taken. For an unlimited
// budget it returns -1.
func (b Budget) Remaining() int {
	if b.Limit == nil {
		return -1
	}
	r := *b.Limit - b.Consumed
	if r < 0 {
		return 0
	}
	return r
}

// Exhausted reports whether no more items may be taken.
func (b Budget) Exhausted() bool {
	return b.Limit != nil && b.Consumed >= *b.Limit
}

// Take truncates items to the remaining budget, consumes what it keeps, and
// returns the kept prefix.
func (b *Budget) Take(items []ContentItem) []ContentItem {
	if b.Limit != nil {
		r := b.Remaining()
		if len(items) > r {
			items = items[:r]
		}
	}
	b.Consumed += len(items)
	return items
}
