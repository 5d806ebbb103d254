package nakamoto

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Keys of an Operation.
const (
	OpBaseFree       = "base_free"
	OpQuoteFree      = "quote_free"
	OpCommissionFree = "commission_free"
	OpCommission     = "commission"
)

var operationKeys = []string{OpBaseFree, OpQuoteFree, OpCommissionFree, OpCommission}

// Operation holds the post-transition balances and the paid commission.
type Operation map[string]decimal.Decimal

func (op Operation) String() string {
	keys := make([]string, 0, len(op))
	for k := range op {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%s", k, op[k].String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// SimulationParams describe the order being simulated; they are only used
// to report errors.
type SimulationParams struct {
	Action   Action
	Quantity float64
	InputRow *Row
}

func (p SimulationParams) String() string {
	if p.InputRow == nil {
		return fmt.Sprintf("{%s %v input_row:<nil>}", p.Action, p.Quantity)
	}
	return fmt.Sprintf("{%s %v input_row:%s}", p.Action, p.Quantity, p.InputRow.String())
}

// SimulatePurchase buys baseToPurchase at the row rate, paying the commission
// in the commission asset. The input row is never modified.
//
// If raiseError is false, an infeasible purchase returns (nil, nil) instead of
// a *SimulationError.
func SimulatePurchase(input Row, baseToPurchase, commissionPercent float64, raiseError bool) (*Row, error) {
	if !(baseToPurchase > 0) {
		return reject(raiseError, simulationErrorf(input, "tried a non-positive base_to_purchase = %v", baseToPurchase))
	}
	if err := checkFinite(input, baseToPurchase, commissionPercent); err != nil {
		return reject(raiseError, err)
	}

	qty := decimal.NewFromFloat(baseToPurchase)
	commission := qty.
		Mul(decimal.NewFromFloat(commissionPercent)).
		Mul(decimal.NewFromFloat(input.BaseCommission))
	op := Operation{
		OpBaseFree:       decimal.NewFromFloat(input.BaseFree).Add(qty),
		OpQuoteFree:      decimal.NewFromFloat(input.QuoteFree).Sub(qty.Mul(decimal.NewFromFloat(input.BaseQuote))),
		OpCommission:     commission,
		OpCommissionFree: decimal.NewFromFloat(input.CommissionFree).Sub(commission),
	}

	params := SimulationParams{Action: ActionPurchase, Quantity: baseToPurchase, InputRow: &input}
	return UpdateOperationRow(input, op, ActionPurchase, params, raiseError)
}

// SimulateSale sells baseToSell at the row rate. It mirrors SimulatePurchase.
func SimulateSale(input Row, baseToSell, commissionPercent float64, raiseError bool) (*Row, error) {
	if !(baseToSell > 0) {
		return reject(raiseError, simulationErrorf(input, "tried a non-positive base_to_sell = %v", baseToSell))
	}
	if err := checkFinite(input, baseToSell, commissionPercent); err != nil {
		return reject(raiseError, err)
	}

	qty := decimal.NewFromFloat(baseToSell)
	commission := qty.
		Mul(decimal.NewFromFloat(commissionPercent)).
		Mul(decimal.NewFromFloat(input.BaseCommission))
	op := Operation{
		OpBaseFree:       decimal.NewFromFloat(input.BaseFree).Sub(qty),
		OpQuoteFree:      decimal.NewFromFloat(input.QuoteFree).Add(qty.Mul(decimal.NewFromFloat(input.BaseQuote))),
		OpCommission:     commission,
		OpCommissionFree: decimal.NewFromFloat(input.CommissionFree).Sub(commission),
	}

	params := SimulationParams{Action: ActionSale, Quantity: baseToSell, InputRow: &input}
	return UpdateOperationRow(input, op, ActionSale, params, raiseError)
}

// UpdateOperationRow commits op on a copy of row: every balance is replaced,
// the base and quote deltas are recorded and the action is set.
//
// A malformed op or params is a *ValidationError whatever raiseError is. A
// negative balance is a *SimulationError, or (nil, nil) if raiseError is false.
func UpdateOperationRow(row Row, op Operation, action Action, params SimulationParams, raiseError bool) (*Row, error) {
	for _, k := range operationKeys {
		if _, found := op[k]; !found {
			return nil, validationErrorf(params, "not all operation keys %v in the operation %s", operationKeys, op)
		}
	}
	if len(op) != len(operationKeys) {
		return nil, validationErrorf(params, "unexpected keys in the operation %s", op)
	}
	if params.InputRow == nil {
		return nil, validationErrorf(nil, "input_row not in the simulation params %s", params)
	}

	for _, k := range []string{OpBaseFree, OpQuoteFree, OpCommissionFree} {
		if op[k].IsNegative() {
			return reject(raiseError, simulationErrorf(params, "new %s %s < 0", k, op[k].String()))
		}
	}

	base, quote := op[OpBaseFree], op[OpQuoteFree]
	row.BaseFreeChange = base.Sub(decimal.NewFromFloat(row.BaseFree)).InexactFloat64()
	row.QuoteFreeChange = quote.Sub(decimal.NewFromFloat(row.QuoteFree)).InexactFloat64()
	row.BaseFree = base.InexactFloat64()
	row.QuoteFree = quote.InexactFloat64()
	row.CommissionFree = op[OpCommissionFree].InexactFloat64()
	row.Commission = op[OpCommission].InexactFloat64()
	row.QuoteValue = quoteValue(row)
	row.Action = action

	return &row, nil
}

func reject(raiseError bool, err error) (*Row, error) {
	if raiseError {
		return nil, err
	}
	return nil, nil
}

// checkFinite guards the decimal conversion, which does not accept NaN or Inf.
func checkFinite(input Row, quantity, commissionPercent float64) error {
	values := []float64{quantity, commissionPercent, input.BaseFree, input.QuoteFree,
		input.CommissionFree, input.BaseQuote, input.BaseCommission}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return simulationErrorf(input, "non-finite value %v in the transition", v)
		}
	}
	return nil
}
