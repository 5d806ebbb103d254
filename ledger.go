package nakamoto

import (
	"fmt"
	"time"
)

// LedgerEntry is a committed transition.
type LedgerEntry struct {
	Id   string
	Time time.Time
	Rule RuleData
	// RuleHash identifies the rule across runs and processes.
	RuleHash uint64
	Stop     bool
	Action   Action

	BaseChange  float64
	QuoteChange float64
	Commission  float64

	// Balances after the transition
	BaseFree       float64
	QuoteFree      float64
	CommissionFree float64
}

func (e LedgerEntry) String() string {
	return fmt.Sprintf("{ [%s] %s %8s base:%+v quote:%+v commission:%v by %s#%016x }",
		e.Id, e.Time.Format("2006-01-02 15:04:05"), e.Action, e.BaseChange, e.QuoteChange, e.Commission, e.Rule, e.RuleHash)
}

// Ledger is the ordered log of the transitions of a simulation.
type Ledger struct {
	entries []LedgerEntry
}

// Record appends the transition that produced row.
func (l *Ledger) Record(r Rule, stop bool, row Row) LedgerEntry {
	entry := LedgerEntry{
		Id:             fmt.Sprintf("op-%d", len(l.entries)+1),
		Time:           row.Time,
		Rule:           Data(r),
		RuleHash:       Hash(r),
		Stop:           stop,
		Action:         row.Action,
		BaseChange:     row.BaseFreeChange,
		QuoteChange:    row.QuoteFreeChange,
		Commission:     row.Commission,
		BaseFree:       row.BaseFree,
		QuoteFree:      row.QuoteFree,
		CommissionFree: row.CommissionFree,
	}
	l.entries = append(l.entries, entry)
	return entry
}

// Entries returns a copy of the log.
func (l *Ledger) Entries() []LedgerEntry {
	res := make([]LedgerEntry, len(l.entries))
	copy(res, l.entries)
	return res
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// Count returns how many entries have the given action.
func (l *Ledger) Count(action Action) int {
	n := 0
	for _, e := range l.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

// TotalCommission is the commission paid over the whole log.
func (l *Ledger) TotalCommission() float64 {
	total := 0.0
	for _, e := range l.entries {
		total += e.Commission
	}
	return total
}
