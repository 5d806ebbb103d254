package nakamoto

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var testT0 = time.Date(2022, 1, 26, 10, 0, 0, 0, time.UTC)

func testRow() Row {
	return Row{
		Time:           testT0,
		BaseFree:       10,
		QuoteFree:      1000,
		CommissionFree: 5,
		BaseQuote:      2,
		BaseCommission: 1,
		QuoteValue:     1020,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func TestSimulatePurchase(t *testing.T) {
	input := testRow()

	row, err := SimulatePurchase(input, 3, 0.001, true)
	if err != nil {
		t.Fatal(err)
	}

	want := testRow()
	want.BaseFree = 13
	want.QuoteFree = 994
	want.Commission = 0.003
	want.CommissionFree = 4.997
	want.Action = ActionPurchase
	want.BaseFreeChange = 3
	want.QuoteFreeChange = -6
	want.QuoteValue = 13*2 + 994

	if diff := cmp.Diff(want, *row); diff != "" {
		t.Fatalf("purchase mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(testRow(), input); diff != "" {
		t.Fatalf("the input row has been modified:\n%s", diff)
	}
}

func TestSimulateSale(t *testing.T) {
	row, err := SimulateSale(testRow(), 4, 0.001, true)
	if err != nil {
		t.Fatal(err)
	}

	want := testRow()
	want.BaseFree = 6
	want.QuoteFree = 1008
	want.Commission = 0.004
	want.CommissionFree = 4.996
	want.Action = ActionSale
	want.BaseFreeChange = -4
	want.QuoteFreeChange = 8
	want.QuoteValue = 6*2 + 1008

	if diff := cmp.Diff(want, *row); diff != "" {
		t.Fatalf("sale mismatch (-want +got):\n%s", diff)
	}
}

func TestSimulateNonPositiveQuantity(t *testing.T) {
	simulations := map[string]func(Row, float64, float64, bool) (*Row, error){
		"purchase": SimulatePurchase,
		"sale":     SimulateSale,
	}

	for name, simulate := range simulations {
		for _, qty := range []float64{0, -1, math.NaN()} {
			input := testRow()

			row, err := simulate(input, qty, 0.001, true)
			if row != nil || !IsSimulationError(err) {
				t.Errorf("%s %v: expected a SimulationError, got %v %v", name, qty, row, err)
			}

			row, err = simulate(input, qty, 0.001, false)
			if row != nil || err != nil {
				t.Errorf("%s %v: expected nil, nil in non-raising mode, got %v %v", name, qty, row, err)
			}

			if diff := cmp.Diff(testRow(), input); diff != "" {
				t.Errorf("%s %v: the input row has been modified:\n%s", name, qty, diff)
			}
		}
	}
}

func TestSimulateSolvency(t *testing.T) {
	lowCommission := testRow()
	lowCommission.CommissionFree = 0.001

	tests := []struct {
		name     string
		input    Row
		simulate func(Row, float64, float64, bool) (*Row, error)
		qty      float64
	}{
		{"sell more base than available", testRow(), SimulateSale, 11},
		{"buy with too little quote", testRow(), SimulatePurchase, 501},
		{"not enough commission asset", lowCommission, SimulatePurchase, 3},
		{"not enough commission asset to sell", lowCommission, SimulateSale, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.input

			row, err := tt.simulate(tt.input, tt.qty, 0.001, true)
			if row != nil || !IsSimulationError(err) {
				t.Fatalf("expected a SimulationError, got %v %v", row, err)
			}

			row, err = tt.simulate(tt.input, tt.qty, 0.001, false)
			if row != nil || err != nil {
				t.Fatalf("expected nil, nil got %v %v", row, err)
			}

			if diff := cmp.Diff(before, tt.input); diff != "" {
				t.Fatalf("the input row has been modified:\n%s", diff)
			}
		})
	}
}

func TestSimulateExactBalances(t *testing.T) {
	// Selling everything leaves exactly 0, which is still solvent
	row, err := SimulateSale(testRow(), 10, 0.001, true)
	if err != nil {
		t.Fatal(err)
	}
	if row.BaseFree != 0 || row.QuoteFree != 1020 {
		t.Fatalf("expected base 0 and quote 1020, got %v %v", row.BaseFree, row.QuoteFree)
	}
}

func TestSimulateNonFinite(t *testing.T) {
	input := testRow()
	input.BaseQuote = math.Inf(1)

	if _, err := SimulatePurchase(input, 1, 0.001, true); !IsSimulationError(err) {
		t.Fatalf("expected a SimulationError, got %v", err)
	}
}

func TestUpdateOperationRowValidation(t *testing.T) {
	input := testRow()
	params := SimulationParams{Action: ActionSale, Quantity: 1, InputRow: &input}
	complete := Operation{
		OpBaseFree:       decimal.NewFromInt(1),
		OpQuoteFree:      decimal.NewFromInt(1),
		OpCommissionFree: decimal.NewFromInt(1),
		OpCommission:     decimal.NewFromInt(0),
	}

	missing := Operation{
		OpBaseFree:  decimal.NewFromInt(1),
		OpQuoteFree: decimal.NewFromInt(1),
	}
	for _, raise := range []bool{true, false} {
		if _, err := UpdateOperationRow(input, missing, ActionSale, params, raise); !IsValidationError(err) {
			t.Errorf("raise=%v: expected a ValidationError for missing keys, got %v", raise, err)
		}
	}

	extra := Operation{"foo": decimal.NewFromInt(1)}
	for k, v := range complete {
		extra[k] = v
	}
	if _, err := UpdateOperationRow(input, extra, ActionSale, params, true); !IsValidationError(err) {
		t.Errorf("expected a ValidationError for an unknown key, got %v", err)
	}

	// Validation comes before the balance checks
	negative := Operation{
		OpBaseFree:       decimal.NewFromInt(-1),
		OpQuoteFree:      decimal.NewFromInt(1),
		OpCommissionFree: decimal.NewFromInt(1),
		OpCommission:     decimal.NewFromInt(0),
	}
	if _, err := UpdateOperationRow(input, negative, ActionSale, SimulationParams{}, false); !IsValidationError(err) {
		t.Errorf("expected a ValidationError for missing input_row, got %v", err)
	}

	row, err := UpdateOperationRow(input, complete, ActionSale, params, true)
	if err != nil {
		t.Fatal(err)
	}
	if row.BaseFreeChange != -9 || row.QuoteFreeChange != -999 || row.Action != ActionSale {
		t.Fatalf("unexpected row %s", row)
	}
}

func TestSimulationErrorMessage(t *testing.T) {
	_, err := SimulateSale(testRow(), 11, 0.001, true)
	if err == nil {
		t.Fatal("expected an error")
	}
	msg := err.Error()
	want := "SimulationError: new base_free -1 < 0\nAt object: "
	if len(msg) < len(want) || msg[:len(want)] != want {
		t.Fatalf("unexpected message %q", msg)
	}
}
