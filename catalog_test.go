package nakamoto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleFromConfig(t *testing.T) {
	r, isStop, err := RuleFromConfig(map[string]interface{}{
		"rule_name":        "MarginSale",
		"margin_threshold": 0.05,
		"hold_percent":     0.2,
	})
	require.NoError(t, err)
	assert.False(t, isStop)
	assert.Equal(t, ClassMarginSale, r.Class())
	assert.Equal(t, Parameters{"margin_threshold": 0.05, "hold_percent": 0.2}, r.Parameters())

	r, isStop, err = RuleFromConfig(map[string]interface{}{"rule_name": "AbsoluteStopLoss", "threshold": 900})
	require.NoError(t, err)
	assert.True(t, isStop)
	assert.Equal(t, ClassAbsoluteStopLoss, r.Class())
	assert.Equal(t, Parameters{"threshold": 900}, r.Parameters())
}

func TestRuleFromConfigErrors(t *testing.T) {
	configs := []map[string]interface{}{
		{"rule_name": "UnknownRule"},
		{"margin_threshold": 0.05},
		{"rule_name": 3},
		{"rule_name": "MarginSale", "margin_threshold": "high"},
		{"rule_name": "AbsoluteTakeProfit", "threshold": -1},
	}
	for _, config := range configs {
		_, _, err := RuleFromConfig(config)
		assert.True(t, IsValidationError(err), "%v: expected a ValidationError, got %v", config, err)
	}
}

func TestUnknownRuleMessage(t *testing.T) {
	_, _, err := NewRule("UnknownRule", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule UnknownRule not found neither in rules nor in stop rules")
}

func TestDecodeRuleSet(t *testing.T) {
	rs, err := DecodeRuleSet([]map[string]interface{}{
		{"rule_name": "MarginSale", "margin_threshold": 0.05, "hold_percent": 0.2},
		{"rule_name": "MarginPurchase", "margin_threshold": 0.05, "hold_percent": 0.2},
		{"rule_name": "MarginSale", "hold_percent": 0.2, "margin_threshold": 0.05},
		{"rule_name": "AbsoluteStopLoss", "threshold": 900},
	})
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 2)
	assert.Len(t, rs.StopRules, 1)
	assert.Equal(t, 3, rs.Len())

	// Round trip
	again, err := DecodeRuleSet(EncodeRuleSet(rs))
	require.NoError(t, err)
	assert.Equal(t, len(rs.Rules), len(again.Rules))
	for key := range rs.Rules {
		assert.Contains(t, again.Rules, key)
	}
	for key := range rs.StopRules {
		assert.Contains(t, again.StopRules, key)
	}
}

func TestDecodeRuleSetReportsPosition(t *testing.T) {
	_, err := DecodeRuleSet([]map[string]interface{}{
		{"rule_name": "MarginSale"},
		{"rule_name": "Nope"},
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.True(t, strings.HasPrefix(err.Error(), "rule #1: "), err.Error())
}

func TestReadRuleSetYAML(t *testing.T) {
	doc := `
- rule_name: MarginSale
  margin_threshold: 0.05
  hold_percent: 0.2
- rule_name: MarginPurchase
  margin_threshold: 0.03
- rule_name: AbsoluteTakeProfit
  threshold: 1500
`
	rs, err := ReadRuleSetYAML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 2)
	require.Len(t, rs.StopRules, 1)

	stop := rs.StopRules.Sorted()[0]
	assert.Equal(t, "AbsoluteTakeProfit", stop.Name())
	assert.Equal(t, 1500.0, stop.Parameters()["threshold"])

	purchase := rs.Rules.Sorted()[1]
	assert.Equal(t, ClassMarginPurchase, purchase.Class())
	assert.Equal(t, DefaultSettings.HoldPercent, purchase.Parameters()["hold_percent"])

	empty, err := ReadRuleSetYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}
