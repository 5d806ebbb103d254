package nakamoto

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// RuleAction is the side of the transition a rule performs when applied.
type RuleAction int

const (
	RuleSale RuleAction = iota
	RulePurchase
)

func (a RuleAction) String() string {
	return string(a.Label())
}

// Label is the row action written by a transition of this kind.
func (a RuleAction) Label() Action {
	switch a {
	case RuleSale:
		return ActionSale
	case RulePurchase:
		return ActionPurchase
	default:
		return Action(fmt.Sprintf("action(%d)", int(a)))
	}
}

// RuleClass identifies the behaviour of a rule. The values are fixed: they
// take part in Hash, so they must never be renumbered.
type RuleClass int

const (
	ClassMarginSale RuleClass = iota + 1
	ClassMarginPurchase
	ClassAbsoluteStopLoss
	ClassAbsoluteTakeProfit
)

var ruleClassNames = map[RuleClass]string{
	ClassMarginSale:         "MarginSale",
	ClassMarginPurchase:     "MarginPurchase",
	ClassAbsoluteStopLoss:   "AbsoluteStopLoss",
	ClassAbsoluteTakeProfit: "AbsoluteTakeProfit",
}

func (c RuleClass) String() string {
	if name, found := ruleClassNames[c]; found {
		return name
	}
	return fmt.Sprintf("RuleClass(%d)", int(c))
}

// Parameters maps a parameter name to its value.
type Parameters map[string]float64

// Names returns the parameter names in canonical (sorted) order.
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sorted returns the parameter values in canonical order.
func (p Parameters) Sorted() []float64 {
	names := p.Names()
	values := make([]float64, len(names))
	for i, name := range names {
		values[i] = p[name]
	}
	return values
}

// Canonical renders the parameters as "a=1,b=2" in canonical order.
func (p Parameters) Canonical() string {
	var sb strings.Builder
	for i, name := range p.Names() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(p[name], 'g', -1, 64))
	}
	return sb.String()
}

func (p Parameters) clone() Parameters {
	c := make(Parameters, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Rule is a named, parameterized decision unit.
//
// DefineMask is the behaviour-specific feasibility predicate; it is never
// used alone, EvaluateMask adds the "row unresolved" condition on top of it.
// Apply computes the transition for the row at the given time and returns
// nil if the rule can not be applied there.
type Rule interface {
	Class() RuleClass
	Action() RuleAction
	Name() string
	Parameters() Parameters
	DefineMask(h Historial) Mask
	Apply(at time.Time, h Historial) *Row
}

// ruleBase carries the identity shared by every rule variant.
type ruleBase struct {
	class      RuleClass
	action     RuleAction
	parameters Parameters
}

func (r *ruleBase) Class() RuleClass   { return r.class }
func (r *ruleBase) Action() RuleAction { return r.action }
func (r *ruleBase) Name() string       { return r.class.String() }

// Parameters returns a copy: rules are immutable once built.
func (r *ruleBase) Parameters() Parameters { return r.parameters.clone() }

func (r *ruleBase) String() string {
	return fmt.Sprintf("%s(%s)", r.Name(), r.parameters.Canonical())
}

// RuleKey is the comparable identity of a rule: two rules with the same key
// are the same rule.
type RuleKey struct {
	Class      RuleClass
	Parameters string
}

// KeyOf returns the identity of the rule.
func KeyOf(r Rule) RuleKey {
	return RuleKey{Class: r.Class(), Parameters: r.Parameters().Canonical()}
}

// Equal is true when a and b have the same class and the same parameters.
func Equal(a, b Rule) bool {
	return KeyOf(a) == KeyOf(b)
}

// Hash is stable across processes: it covers the class tag and the
// parameter values in canonical order.
func Hash(r Rule) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(r.Class()))
	_, _ = d.Write(buf[:])
	for _, v := range r.Parameters().Sorted() {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// Rules is a set of rules keyed by their identity.
type Rules map[RuleKey]Rule

func NewRules(rules ...Rule) Rules {
	s := Rules{}
	for _, r := range rules {
		s.Add(r)
	}
	return s
}

// Add inserts r. It returns false if an equal rule is already in the set.
func (s Rules) Add(r Rule) bool {
	key := KeyOf(r)
	if _, exists := s[key]; exists {
		return false
	}
	s[key] = r
	return true
}

func (s Rules) Contains(r Rule) bool {
	_, exists := s[KeyOf(r)]
	return exists
}

// Sorted returns the rules ordered by class, then by canonical parameters.
func (s Rules) Sorted() []Rule {
	keys := make([]RuleKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Class != keys[j].Class {
			return keys[i].Class < keys[j].Class
		}
		return keys[i].Parameters < keys[j].Parameters
	})

	sorted := make([]Rule, len(keys))
	for i, k := range keys {
		sorted[i] = s[k]
	}
	return sorted
}

// RuleSet groups the ordinary rules and the stop rules of a simulation.
type RuleSet struct {
	Rules     Rules
	StopRules Rules
}

func NewRuleSet() RuleSet {
	return RuleSet{Rules: Rules{}, StopRules: Rules{}}
}

func (rs RuleSet) Len() int {
	return len(rs.Rules) + len(rs.StopRules)
}

// <editor-fold desc="Mask evaluation" >

// Mask is a feasibility vector aligned with a Historial.
type Mask []bool

// And returns the element-wise conjunction. Positions missing in either
// operand are false.
func (m Mask) And(other Mask) Mask {
	res := make(Mask, len(m))
	for i := range m {
		res[i] = m[i] && i < len(other) && other[i]
	}
	return res
}

// First returns the index of the first true entry at or after from, or -1.
func (m Mask) First(from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(m); i++ {
		if m[i] {
			return i
		}
	}
	return -1
}

func (m Mask) Any() bool {
	return m.First(0) >= 0
}

// MaxTime is the first feasible index of a rule that is never feasible.
var MaxTime = time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC)

// EvaluateMask conjoins the rule predicate with the base condition shared by
// all rules: the row has no action yet.
func EvaluateMask(r Rule, h Historial) Mask {
	base := h.Unresolved()
	return base.And(r.DefineMask(h))
}

// ApplyFunc computes the transition of a rule on the row at the given time.
type ApplyFunc func(at time.Time, h Historial) *Row

// RuleData is the result of checking a rule against a Historial.
type RuleData struct {
	Action             RuleAction
	Name               string
	Parameters         Parameters
	Mask               Mask
	Apply              ApplyFunc
	FirstFeasibleIndex time.Time
}

// Data describes the rule without evaluating it.
func Data(r Rule) RuleData {
	return RuleData{
		Action:             r.Action(),
		Name:               r.Name(),
		Parameters:         r.Parameters(),
		FirstFeasibleIndex: MaxTime,
	}
}

// Check evaluates the mask of the rule and locates its first feasible row.
func Check(r Rule, h Historial) RuleData {
	data := Data(r)
	data.Mask = EvaluateMask(r, h)
	data.Apply = r.Apply
	if i := data.Mask.First(0); i >= 0 {
		data.FirstFeasibleIndex = h[i].Time
	}
	return data
}

// Feasible is true if the mask is true on at least one row.
func (d RuleData) Feasible() bool {
	return !d.FirstFeasibleIndex.Equal(MaxTime)
}

func (d RuleData) SortedParameters() []float64 {
	return d.Parameters.Sorted()
}

// AsMap flattens the rule for tabular display: {"name": ..., <parameters>}.
// If nested, the parameters are kept under the "parameters" key.
func (d RuleData) AsMap(nested bool) map[string]interface{} {
	if nested {
		return map[string]interface{}{"name": d.Name, "parameters": d.Parameters.clone()}
	}
	res := map[string]interface{}{"name": d.Name}
	for k, v := range d.Parameters {
		res[k] = v
	}
	return res
}

func (d RuleData) String() string {
	return fmt.Sprintf("%s(%s)", d.Name, d.Parameters.Canonical())
}

// </editor-fold>
