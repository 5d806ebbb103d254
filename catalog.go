package nakamoto

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RuleNameKey is the key of a rule description that holds the rule name.
// Every other key is a parameter.
const RuleNameKey = "rule_name"

// Constructor builds a rule from its parameters.
type Constructor func(params Parameters) (Rule, error)

var (
	// ruleCatalog holds the ordinary rules. It is queried before stopRuleCatalog.
	ruleCatalog = map[string]Constructor{
		ClassMarginSale.String(): func(p Parameters) (Rule, error) {
			return NewMarginSale(p)
		},
		ClassMarginPurchase.String(): func(p Parameters) (Rule, error) {
			return NewMarginPurchase(p)
		},
	}

	stopRuleCatalog = map[string]Constructor{
		ClassAbsoluteStopLoss.String(): func(p Parameters) (Rule, error) {
			return NewAbsoluteStopLoss(p)
		},
		ClassAbsoluteTakeProfit.String(): func(p Parameters) (Rule, error) {
			return NewAbsoluteTakeProfit(p)
		},
	}
)

// NewRule resolves name in the ordinary catalog first, then in the stop
// catalog. The returned bool is true for stop rules.
func NewRule(name string, params Parameters) (Rule, bool, error) {
	if params == nil {
		params = Parameters{}
	}
	if build, found := ruleCatalog[name]; found {
		r, err := build(params)
		return r, false, err
	}
	if build, found := stopRuleCatalog[name]; found {
		r, err := build(params)
		return r, true, err
	}
	return nil, false, validationErrorf(nil, "rule %s not found neither in rules nor in stop rules", name)
}

// RuleFromConfig decodes a declarative rule description such as
// {"rule_name": "MarginSale", "margin_threshold": 0.05}.
func RuleFromConfig(config map[string]interface{}) (Rule, bool, error) {
	raw, found := config[RuleNameKey]
	if !found {
		return nil, false, validationErrorf(config, "missing %s", RuleNameKey)
	}
	name, ok := raw.(string)
	if !ok {
		return nil, false, validationErrorf(config, "%s must be a string", RuleNameKey)
	}

	params := Parameters{}
	for k, v := range config {
		if k == RuleNameKey {
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			return nil, false, validationErrorf(config, "parameter %s of %s: %v", k, name, err)
		}
		params[k] = f
	}
	return NewRule(name, params)
}

// DecodeRuleSet partitions the decoded rules into ordinary and stop rules.
// Identical definitions collapse into one rule.
func DecodeRuleSet(configs []map[string]interface{}) (RuleSet, error) {
	rs := NewRuleSet()
	for i, config := range configs {
		r, isStop, err := RuleFromConfig(config)
		if err != nil {
			return RuleSet{}, errors.Wrapf(err, "rule #%d", i)
		}
		if isStop {
			rs.StopRules.Add(r)
		} else {
			rs.Rules.Add(r)
		}
	}
	return rs, nil
}

// ReadRuleSetYAML decodes a yaml list of rule descriptions.
func ReadRuleSetYAML(r io.Reader) (RuleSet, error) {
	var configs []map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&configs); err != nil && err != io.EOF {
		return RuleSet{}, errors.Wrap(err, "decoding rule set yaml")
	}
	return DecodeRuleSet(configs)
}

// EncodeRuleSet is the inverse of DecodeRuleSet: stop rules come last.
func EncodeRuleSet(rs RuleSet) []map[string]interface{} {
	var configs []map[string]interface{}
	for _, rules := range []Rules{rs.Rules, rs.StopRules} {
		for _, r := range rules.Sorted() {
			config := map[string]interface{}{RuleNameKey: r.Name()}
			for k, v := range r.Parameters() {
				config[k] = v
			}
			configs = append(configs, config)
		}
	}
	return configs
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%v (%T) is not a number", v, v)
	}
}
