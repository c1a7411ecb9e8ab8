// Package billing holds the cost-calculation and spend-deduction
// collaborators the pipeline calls on task completion. Both are
// best-effort from the orchestrator's point of view: a billing failure
// is logged and never changes the task outcome.
package billing

import (
	"context"
	"sync"
)

// CostCalculator computes the cost of a completed generation.
type CostCalculator interface {
	// Cost returns the amount to charge for the given model and number of
	// generated units.
	Cost(model string, units int) float64
}

// Ledger deducts spend from a virtual key's balance.
type Ledger interface {
	Deduct(ctx context.Context, virtualKeyID string, amount float64) error
}

// TableCostCalculator prices models from a static table with a fallback
// rate for unknown models.
type TableCostCalculator struct {
	rates       map[string]float64
	defaultRate float64
}

// NewTableCostCalculator creates a TableCostCalculator. rates maps model
// name to per-unit price.
func NewTableCostCalculator(rates map[string]float64, defaultRate float64) *TableCostCalculator {
	return &TableCostCalculator{rates: rates, defaultRate: defaultRate}
}

// Cost returns units times the model's per-unit rate.
func (c *TableCostCalculator) Cost(model string, units int) float64 {
	if units <= 0 {
		units = 1
	}
	rate, ok := c.rates[model]
	if !ok {
		rate = c.defaultRate
	}
	return rate * float64(units)
}

// MemoryLedger tracks spend per virtual key in memory.
type MemoryLedger struct {
	mu    sync.Mutex
	spent map[string]float64
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{spent: make(map[string]float64)}
}

// Deduct adds the amount to the key's running total.
func (l *MemoryLedger) Deduct(ctx context.Context, virtualKeyID string, amount float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	l.spent[virtualKeyID] += amount
	l.mu.Unlock()
	return nil
}

// Spent returns the total deducted for a virtual key.
func (l *MemoryLedger) Spent(virtualKeyID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent[virtualKeyID]
}

var (
	_ CostCalculator = (*TableCostCalculator)(nil)
	_ Ledger         = (*MemoryLedger)(nil)
)
