package cost

import "sync"

// BudgetState tracks run spend against a ceiling with a held-back reserve.
// The orchestrator checks Allow before every paid call; a failed check is
// fatal to the whole run, not just the in-flight record. One budget is
// shared across every partition of a batch run, so access is synchronized.
type BudgetState struct {
	mu      sync.Mutex
	total   float64
	reserve float64
	spent   float64
}

// NewBudgetState creates a budget with the given ceiling and reserve ratio
// (0.1 keeps 10% of the total unspendable).
func NewBudgetState(totalUSD, reserveRatio float64) *BudgetState {
	if reserveRatio < 0 {
		reserveRatio = 0
	}
	if reserveRatio > 1 {
		reserveRatio = 1
	}
	return &BudgetState{total: totalUSD, reserve: reserveRatio}
}

// Allow reports whether an estimated spend fits inside the usable budget:
// spent + estimate <= total * (1 - reserve).
func (b *BudgetState) Allow(estimateUSD float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent+estimateUSD <= b.usable()
}

// Record adds actual spend after a call completes.
func (b *BudgetState) Record(actualUSD float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent += actualUSD
}

// Total returns the budget ceiling.
func (b *BudgetState) Total() float64 {
	return b.total
}

// ReserveRatio returns the held-back fraction of the ceiling.
func (b *BudgetState) ReserveRatio() float64 {
	return b.reserve
}

// Spent returns the recorded spend so far.
func (b *BudgetState) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}

// Usable returns the spendable portion of the budget.
func (b *BudgetState) Usable() float64 {
	return b.usable()
}

func (b *BudgetState) usable() float64 {
	return b.total * (1 - b.reserve)
}

// Remaining returns usable budget not yet spent. Never negative.
func (b *BudgetState) Remaining() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.usable() - b.spent
	if r < 0 {
		return 0
	}
	return r
}
