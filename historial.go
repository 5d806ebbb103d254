package nakamoto

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"
)

// Action is the label of a resolved row. The zero value means unresolved.
type Action string

const (
	ActionNone     Action = ""
	ActionPurchase Action = "purchase"
	ActionSale     Action = "sale"
	// ActionStopped marks the rows after a stop rule liquidated the position.
	ActionStopped Action = "stopped"
)

// Row is one observation of the historical series.
type Row struct {
	Time           time.Time
	BaseFree       float64
	QuoteFree      float64
	CommissionFree float64
	// BaseQuote is the base-quote exchange rate.
	BaseQuote float64
	// BaseCommission is the base-commission exchange rate.
	BaseCommission float64
	// PriceAccPctChange is the fractional change of BaseQuote since the last
	// resolved row.
	PriceAccPctChange float64
	// QuoteValue is the portfolio value expressed in quote.
	QuoteValue float64

	Action          Action
	BaseFreeChange  float64
	QuoteFreeChange float64
	Commission      float64
}

// Resolved rows are excluded from every rule mask.
func (r Row) Resolved() bool {
	return r.Action != ActionNone
}

func (r Row) TimeStr() string {
	return r.Time.Format("2006-01-02 15:04:05")
}

func (r Row) String() string {
	return fmt.Sprintf("[%s] base:%v quote:%v commission:%v base-quote:%v acc:%v value:%v action:%q",
		r.TimeStr(), r.BaseFree, r.QuoteFree, r.CommissionFree, r.BaseQuote, r.PriceAccPctChange, r.QuoteValue, r.Action)
}

// Price is a point of a price list.
type Price struct {
	Time           time.Time
	BaseQuote      float64
	BaseCommission float64
}

// Balances are the free quantities of the three assets.
type Balances struct {
	Base       float64
	Quote      float64
	Commission float64
}

// Historial is a time ordered series of rows.
type Historial []Row

// NewHistorial builds an unresolved series from a price list, starting from
// the given balances.
func NewHistorial(prices []Price, initial Balances) Historial {
	h := make(Historial, len(prices))
	for i, p := range prices {
		h[i] = Row{
			Time:           p.Time,
			BaseQuote:      p.BaseQuote,
			BaseCommission: p.BaseCommission,
		}
	}
	if len(h) == 0 {
		return h
	}

	h[0].BaseFree = initial.Base
	h[0].QuoteFree = initial.Quote
	h[0].CommissionFree = initial.Commission
	h[0].QuoteValue = quoteValue(h[0])
	h.Propagate(0)
	return h
}

// Rebuild discards every action and rebuilds the series from its prices and
// the balances of the first row.
func (h Historial) Rebuild() Historial {
	if len(h) == 0 {
		return Historial{}
	}
	first := h[0]
	initial := Balances{Base: first.BaseFree, Quote: first.QuoteFree, Commission: first.CommissionFree}
	if first.Resolved() {
		initial.Base -= first.BaseFreeChange
		initial.Quote -= first.QuoteFreeChange
		initial.Commission += first.Commission
	}
	return NewHistorial(h.Prices(), initial)
}

func (h Historial) Clone() Historial {
	c := make(Historial, len(h))
	copy(c, h)
	return c
}

// Index returns the position of the first row at time t, or -1.
func (h Historial) Index(t time.Time) int {
	for i := range h {
		if h[i].Time.Equal(t) {
			return i
		}
	}
	return -1
}

// Unresolved is the base mask shared by every rule.
func (h Historial) Unresolved() Mask {
	m := make(Mask, len(h))
	for i := range h {
		m[i] = !h[i].Resolved()
	}
	return m
}

// Propagate carries the balances of row `from` to the unresolved rows after it
// and recomputes their accumulated price change and portfolio value, using
// the price of row `from` as reference. It stops at the next resolved row.
func (h Historial) Propagate(from int) {
	if from < 0 || from >= len(h) {
		return
	}
	ref := h[from]
	for i := from + 1; i < len(h); i++ {
		if h[i].Resolved() {
			return
		}
		h[i].BaseFree = ref.BaseFree
		h[i].QuoteFree = ref.QuoteFree
		h[i].CommissionFree = ref.CommissionFree
		h[i].BaseFreeChange = 0
		h[i].QuoteFreeChange = 0
		h[i].Commission = 0
		h[i].PriceAccPctChange = pctChange(ref.BaseQuote, h[i].BaseQuote)
		h[i].QuoteValue = quoteValue(h[i])
	}
}

// Halt propagates the balances of row `from` and labels every later row as
// stopped, so no rule can fire on them.
func (h Historial) Halt(from int) {
	h.Propagate(from)
	for i := from + 1; i < len(h); i++ {
		if h[i].Resolved() {
			continue
		}
		h[i].Action = ActionStopped
	}
}

// Prices extracts the price list of the series.
func (h Historial) Prices() []Price {
	prices := make([]Price, len(h))
	for i, r := range h {
		prices[i] = Price{Time: r.Time, BaseQuote: r.BaseQuote, BaseCommission: r.BaseCommission}
	}
	return prices
}

// Validate checks that the series is strictly ordered in time.
func (h Historial) Validate() error {
	for i := 1; i < len(h); i++ {
		if !h[i].Time.After(h[i-1].Time) {
			return validationErrorf(h[i], "historial is not strictly ordered at row %d", i)
		}
	}
	return nil
}

func pctChange(ref, price float64) float64 {
	if ref == 0 {
		return 0
	}
	return price/ref - 1
}

func quoteValue(r Row) float64 {
	return r.BaseFree*r.BaseQuote + r.QuoteFree
}

func PriceAccPctChange(h Historial) []float64 {
	res := make([]float64, len(h))
	for i, r := range h {
		res[i] = r.PriceAccPctChange
	}
	return res
}

func QuoteValue(h Historial) []float64 {
	res := make([]float64, len(h))
	for i, r := range h {
		res[i] = r.QuoteValue
	}
	return res
}

func BaseQuote(h Historial) []float64 {
	res := make([]float64, len(h))
	for i, r := range h {
		res[i] = r.BaseQuote
	}
	return res
}

// <editor-fold desc="CSV" >

const (
	ColBaseFree          = "base_free"
	ColQuoteFree         = "quote_free"
	ColCommissionFree    = "commission_free"
	ColBaseQuote         = "base-quote"
	ColBaseCommission    = "base-commission"
	ColPriceAccPctChange = "price_acc_pct_change"
	ColQuoteValue        = "quote_value"
	ColAction            = "action"
	ColBaseFreeChange    = "base_free_change"
	ColQuoteFreeChange   = "quote_free_change"
	ColCommission        = "commission"
)

var requiredColumns = []string{ColBaseFree, ColQuoteFree, ColCommissionFree, ColBaseQuote, ColBaseCommission}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

// ReadHistorialCSV reads a simulation csv: the first column holds the row
// timestamps, the others are matched by name. An empty action is unset.
// Missing price_acc_pct_change and quote_value columns are computed.
func ReadHistorialCSV(r io.Reader) (Historial, error) {
	df := dataframe.ReadCSV(r, dataframe.DetectTypes(false), dataframe.HasHeader(true))
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "reading historial csv")
	}

	names := df.Names()
	if len(names) == 0 {
		return nil, validationErrorf(nil, "historial csv has no columns")
	}
	columns := map[string]bool{}
	for _, n := range names {
		columns[n] = true
	}
	for _, n := range requiredColumns {
		if !columns[n] {
			return nil, validationErrorf(names, "historial csv misses column %q", n)
		}
	}

	floats := func(name string) []float64 {
		if !columns[name] {
			return nil
		}
		return df.Col(name).Float()
	}

	times := df.Col(names[0]).Records()
	baseFree := floats(ColBaseFree)
	quoteFree := floats(ColQuoteFree)
	commissionFree := floats(ColCommissionFree)
	baseQuote := floats(ColBaseQuote)
	baseCommission := floats(ColBaseCommission)
	accPct := floats(ColPriceAccPctChange)
	value := floats(ColQuoteValue)
	baseChange := floats(ColBaseFreeChange)
	quoteChange := floats(ColQuoteFreeChange)
	commission := floats(ColCommission)
	var actions []string
	if columns[ColAction] {
		actions = df.Col(ColAction).Records()
	}

	h := make(Historial, df.Nrow())
	for i := range h {
		inst, err := parseTime(times[i])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		row := Row{
			Time:           inst,
			BaseFree:       baseFree[i],
			QuoteFree:      quoteFree[i],
			CommissionFree: commissionFree[i],
			BaseQuote:      baseQuote[i],
			BaseCommission: baseCommission[i],
		}
		for _, v := range []float64{row.BaseFree, row.QuoteFree, row.CommissionFree, row.BaseQuote, row.BaseCommission} {
			if math.IsNaN(v) {
				return nil, validationErrorf(times[i], "row %d has a missing or invalid balance/rate", i)
			}
		}

		row.PriceAccPctChange = valueAt(accPct, i)
		row.BaseFreeChange = valueAt(baseChange, i)
		row.QuoteFreeChange = valueAt(quoteChange, i)
		row.Commission = valueAt(commission, i)
		if value != nil && !math.IsNaN(value[i]) {
			row.QuoteValue = value[i]
		} else {
			row.QuoteValue = quoteValue(row)
		}
		if actions != nil {
			row.Action = parseAction(actions[i])
		}
		h[i] = row
	}

	if accPct == nil {
		fillAccPctChange(h)
	}
	return h, h.Validate()
}

// fillAccPctChange recomputes the accumulated change using the last resolved
// row (or the first row) as reference.
func fillAccPctChange(h Historial) {
	if len(h) == 0 {
		return
	}
	ref := h[0].BaseQuote
	for i := range h {
		h[i].PriceAccPctChange = pctChange(ref, h[i].BaseQuote)
		if h[i].Resolved() {
			ref = h[i].BaseQuote
		}
	}
}

func valueAt(values []float64, i int) float64 {
	if values == nil || math.IsNaN(values[i]) {
		return 0
	}
	return values[i]
}

func parseAction(s string) Action {
	s = strings.TrimSpace(s)
	switch s {
	case "", "NaN", "NA", "nan", "None", "<nil>":
		return ActionNone
	}
	return Action(s)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, validationErrorf(s, "can't parse the row timestamp")
}

// </editor-fold>
