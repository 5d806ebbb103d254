package nakamoto

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	MOperations     = stats.Int64("nakamoto/operations", "committed transitions", stats.UnitDimensionless)
	MBaseFree       = stats.Float64("nakamoto/base_free", "", stats.UnitDimensionless)
	MQuoteFree      = stats.Float64("nakamoto/quote_free", "", stats.UnitDimensionless)
	MCommissionFree = stats.Float64("nakamoto/commission_free", "", stats.UnitDimensionless)
	MQuoteValue     = stats.Float64("nakamoto/quote_value", "", stats.UnitDimensionless)

	KeyRule, _    = tag.NewKey("rule")
	KeyAction, _  = tag.NewKey("action")
	KeyRowTime, _ = tag.NewKey("rowTime") // Time in some string representation

	OperationsView = &view.View{
		Name:        "nakamoto/operations_count",
		Measure:     MOperations,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyRule, KeyAction},
	}

	DefaultViews = []*view.View{
		OperationsView,
		{Measure: MBaseFree, Aggregation: view.LastValue(), TagKeys: []tag.Key{KeyRowTime}},
		{Measure: MQuoteFree, Aggregation: view.LastValue(), TagKeys: []tag.Key{KeyRowTime}},
		{Measure: MCommissionFree, Aggregation: view.LastValue(), TagKeys: []tag.Key{KeyRowTime}},
		{Measure: MQuoteValue, Aggregation: view.LastValue(), TagKeys: []tag.Key{KeyRowTime}},
	}
)

// RegisterViews registers DefaultViews. Measures are recorded anyway, but
// nothing is aggregated until the views are registered.
func RegisterViews() error {
	return view.Register(DefaultViews...)
}

// GetNewContextFromRow tags a context with the row time and the rule that
// resolved it.
func GetNewContextFromRow(row Row, ruleName string) context.Context {
	ctx, err := tag.New(context.Background(),
		tag.Insert(KeyRowTime, row.TimeStr()),
		tag.Insert(KeyRule, ruleName),
		tag.Insert(KeyAction, string(row.Action)),
	)
	if err != nil {
		panic(err) // keys and values are always valid
	}
	return ctx
}

func recordOperation(entry LedgerEntry, row Row) {
	ctx := GetNewContextFromRow(row, entry.Rule.Name)
	stats.Record(ctx,
		MOperations.M(1),
		MBaseFree.M(row.BaseFree),
		MQuoteFree.M(row.QuoteFree),
		MCommissionFree.M(row.CommissionFree),
		MQuoteValue.M(row.QuoteValue),
	)
}
