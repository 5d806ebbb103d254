package nakamoto

import (
	"context"
	"time"

	"golang.org/x/exp/slog"
)

type ExecutionResult struct {
	TotalTime       time.Duration `json:"total_time"`
	TotalTimeString string        `json:"total_time_S"`
	InitialValue    float64       `json:"initial_value"`
	FinalValue      float64       `json:"final_value"`
	PL              float64       `json:"pl"`
	Purchases       int           `json:"purchases"`
	Sales           int           `json:"sales"`
	// StoppedBy is the stop rule that halted the run, if any.
	StoppedBy string    `json:"stopped_by,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Ledger    *Ledger   `json:"-"`
}

// Simulator walks a Historial and applies the rules of a RuleSet, resolving
// at most one transition per row.
//
// Rows are visited in time order. The next candidate row is the earliest row
// where any mask is true. Stop rules are tried before ordinary rules, and
// within a family rules are tried in Rules.Sorted order; the first rule whose
// Apply succeeds resolves the row. A row where every candidate fails stays
// unresolved and is skipped. A committed stop rule halts trading.
type Simulator struct {
	RuleSet RuleSet
	Logger  *slog.Logger
}

type candidate struct {
	rule Rule
	stop bool
}

func (s *Simulator) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// candidates returns the rules in the order they are tried on a row.
func (s *Simulator) candidates() []candidate {
	var res []candidate
	for _, r := range s.RuleSet.StopRules.Sorted() {
		res = append(res, candidate{rule: r, stop: true})
	}
	for _, r := range s.RuleSet.Rules.Sorted() {
		res = append(res, candidate{rule: r})
	}
	return res
}

func check(candidates []candidate, h Historial) []RuleData {
	evaluations := make([]RuleData, len(candidates))
	for i, c := range candidates {
		evaluations[i] = Check(c.rule, h)
	}
	return evaluations
}

// nextRow returns the earliest row at or after cursor where any mask is true.
func nextRow(evaluations []RuleData, cursor int) int {
	next := -1
	for _, e := range evaluations {
		i := e.Mask.First(cursor)
		if i >= 0 && (next < 0 || i < next) {
			next = i
		}
	}
	return next
}

// Run resolves h in place and returns the summary of the run.
func (s *Simulator) Run(h Historial) (ExecutionResult, error) {
	start := time.Now()
	log := s.logger()

	if len(h) == 0 {
		return ExecutionResult{}, validationErrorf(nil, "empty historial")
	}
	if err := h.Validate(); err != nil {
		return ExecutionResult{}, err
	}

	stats := ExecutionResult{
		InitialValue: h[0].QuoteValue,
		Ledger:       &Ledger{},
	}

	candidates := s.candidates()
	evaluations := check(candidates, h)

	for cursor := 0; cursor < len(h); {
		i := nextRow(evaluations, cursor)
		if i < 0 {
			break
		}
		cursor = i + 1

		committed, halted := s.resolve(h, i, candidates, evaluations, &stats)
		if halted {
			h.Halt(i)
			break
		}
		if committed {
			h.Propagate(i)
			evaluations = check(candidates, h)
		}
	}

	last := h[len(h)-1]
	stats.FinalValue = last.QuoteValue
	if stats.InitialValue != 0 {
		stats.PL = (stats.FinalValue/stats.InitialValue - 1) * 100
	}
	stats.Purchases = stats.Ledger.Count(ActionPurchase)
	stats.Sales = stats.Ledger.Count(ActionSale)
	stats.TotalTime = time.Since(start)
	stats.TotalTimeString = stats.TotalTime.String()

	log.Info("simulation done",
		"rows", len(h),
		"operations", stats.Ledger.Len(),
		"purchases", stats.Purchases,
		"sales", stats.Sales,
		"pl", stats.PL,
		"stopped_by", stats.StoppedBy,
		"elapsed", stats.TotalTimeString)

	return stats, nil
}

// resolve tries the candidates feasible on row i, in order, and commits the
// first transition that succeeds.
func (s *Simulator) resolve(h Historial, i int, candidates []candidate, evaluations []RuleData, stats *ExecutionResult) (committed, halted bool) {
	log := s.logger()
	ctx := ContextWithRow(context.Background(), h[i])

	for j, c := range candidates {
		// The row may only be resolved once.
		if h[i].Resolved() {
			return committed, false
		}
		if !evaluations[j].Mask[i] {
			continue
		}

		row := evaluations[j].Apply(h[i].Time, h)
		if row == nil {
			log.Log(ctx, slog.LevelDebug, "rule not applicable", "rule", evaluations[j].String())
			continue
		}

		h[i] = *row
		ctx = ContextWithRow(ctx, *row)
		entry := stats.Ledger.Record(c.rule, c.stop, *row)
		recordOperation(entry, *row)
		log.Log(ctx, slog.LevelDebug, "transition committed", "entry", entry.String())

		if c.stop {
			stats.StoppedBy = evaluations[j].String()
			stats.StoppedAt = row.Time
			log.Log(ctx, slog.LevelInfo, "stop rule triggered, trading halted", "rule", stats.StoppedBy)
			return true, true
		}
		return true, false
	}
	return false, false
}
