package nakamoto

import (
	"time"
)

const (
	ParamMarginThreshold = "margin_threshold"
	ParamHoldPercent     = "hold_percent"
	ParamThreshold       = "threshold"
)

// MarginSale sells when the accumulated price change since the last action
// reaches margin_threshold. The quantity follows the accumulated change,
// keeping a hold_percent fraction of it.
type MarginSale struct {
	ruleBase
}

// NewMarginSale builds the rule; missing parameters take the defaults in
// DefaultSettings.
func NewMarginSale(params Parameters) (*MarginSale, error) {
	p, err := marginParameters(params, DefaultSettings.SellingMarginThreshold)
	if err != nil {
		return nil, err
	}
	return &MarginSale{ruleBase{class: ClassMarginSale, action: RuleSale, parameters: p}}, nil
}

func (r *MarginSale) DefineMask(h Historial) Mask {
	threshold := r.parameters[ParamMarginThreshold]
	m := make(Mask, len(h))
	for i := range h {
		m[i] = h[i].PriceAccPctChange >= threshold
	}
	return m
}

func (r *MarginSale) Apply(at time.Time, h Historial) *Row {
	i := h.Index(at)
	if i < 0 {
		return nil
	}
	input := h[i]
	baseToSell := input.BaseFree * input.PriceAccPctChange * (1 - r.parameters[ParamHoldPercent])
	row, _ := SimulateSale(input, baseToSell, DefaultSettings.Commission, false)
	return row
}

// MarginPurchase buys when the accumulated price change since the last
// action drops to -margin_threshold.
type MarginPurchase struct {
	ruleBase
}

func NewMarginPurchase(params Parameters) (*MarginPurchase, error) {
	p, err := marginParameters(params, DefaultSettings.BuyingMarginThreshold)
	if err != nil {
		return nil, err
	}
	return &MarginPurchase{ruleBase{class: ClassMarginPurchase, action: RulePurchase, parameters: p}}, nil
}

func (r *MarginPurchase) DefineMask(h Historial) Mask {
	threshold := r.parameters[ParamMarginThreshold]
	m := make(Mask, len(h))
	for i := range h {
		m[i] = h[i].PriceAccPctChange <= -threshold
	}
	return m
}

func (r *MarginPurchase) Apply(at time.Time, h Historial) *Row {
	i := h.Index(at)
	if i < 0 {
		return nil
	}
	input := h[i]
	baseToPurchase := input.BaseFree * (-input.PriceAccPctChange) * (1 - r.parameters[ParamHoldPercent])
	row, _ := SimulatePurchase(input, baseToPurchase, DefaultSettings.Commission, false)
	return row
}

func marginParameters(params Parameters, defaultThreshold float64) (Parameters, error) {
	if err := onlyParameters(params, ParamMarginThreshold, ParamHoldPercent); err != nil {
		return nil, err
	}
	p := Parameters{
		ParamMarginThreshold: defaultThreshold,
		ParamHoldPercent:     DefaultSettings.HoldPercent,
	}
	for k, v := range params {
		p[k] = normalizeZero(v)
	}

	if !(p[ParamMarginThreshold] > 0) {
		return nil, validationErrorf(p, "non-positive %s = %v", ParamMarginThreshold, p[ParamMarginThreshold])
	}
	if !(p[ParamHoldPercent] >= 0 && p[ParamHoldPercent] < 1) {
		return nil, validationErrorf(p, "%s = %v out of [0, 1)", ParamHoldPercent, p[ParamHoldPercent])
	}
	return p, nil
}

// normalizeZero maps -0 to 0, so both spell the same rule.
func normalizeZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}

// onlyParameters rejects parameter names the rule does not know.
func onlyParameters(params Parameters, allowed ...string) error {
	for name := range params {
		known := false
		for _, a := range allowed {
			if name == a {
				known = true
				break
			}
		}
		if !known {
			return validationErrorf(params, "unexpected parameter %q, expected %v", name, allowed)
		}
	}
	return nil
}

var (
	_ Rule = (*MarginSale)(nil)
	_ Rule = (*MarginPurchase)(nil)
)
