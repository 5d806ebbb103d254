package nakamoto

import (
	"time"
)

// stopRule liquidates the whole base balance. Stop rules always sell.
type stopRule struct {
	ruleBase
}

func (r *stopRule) Apply(at time.Time, h Historial) *Row {
	i := h.Index(at)
	if i < 0 {
		return nil
	}
	input := h[i]
	row, _ := SimulateSale(input, input.BaseFree, DefaultSettings.Commission, false)
	return row
}

func newStopRule(class RuleClass, params Parameters) (stopRule, error) {
	if err := onlyParameters(params, ParamThreshold); err != nil {
		return stopRule{}, err
	}
	threshold, found := params[ParamThreshold]
	if !found {
		return stopRule{}, validationErrorf(params, "%s requires %s", class, ParamThreshold)
	}
	if !(threshold > 0) {
		return stopRule{}, validationErrorf(params, "non-positive %s = %v", ParamThreshold, threshold)
	}
	return stopRule{ruleBase{class: class, action: RuleSale, parameters: Parameters{ParamThreshold: threshold}}}, nil
}

// AbsoluteStopLoss stops trading when the portfolio value falls to threshold.
type AbsoluteStopLoss struct {
	stopRule
}

func NewAbsoluteStopLoss(params Parameters) (*AbsoluteStopLoss, error) {
	base, err := newStopRule(ClassAbsoluteStopLoss, params)
	if err != nil {
		return nil, err
	}
	return &AbsoluteStopLoss{base}, nil
}

func (r *AbsoluteStopLoss) DefineMask(h Historial) Mask {
	threshold := r.parameters[ParamThreshold]
	m := make(Mask, len(h))
	for i := range h {
		m[i] = h[i].QuoteValue <= threshold
	}
	return m
}

// AbsoluteTakeProfit stops trading when the portfolio value reaches threshold.
type AbsoluteTakeProfit struct {
	stopRule
}

func NewAbsoluteTakeProfit(params Parameters) (*AbsoluteTakeProfit, error) {
	base, err := newStopRule(ClassAbsoluteTakeProfit, params)
	if err != nil {
		return nil, err
	}
	return &AbsoluteTakeProfit{base}, nil
}

func (r *AbsoluteTakeProfit) DefineMask(h Historial) Mask {
	threshold := r.parameters[ParamThreshold]
	m := make(Mask, len(h))
	for i := range h {
		m[i] = h[i].QuoteValue >= threshold
	}
	return m
}

var (
	_ Rule = (*AbsoluteStopLoss)(nil)
	_ Rule = (*AbsoluteTakeProfit)(nil)
)
