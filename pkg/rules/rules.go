// Package rules maps free-text clinical context to an approved set of
// blood and biochemical tests.
//
// The engine is deterministic: the same context and answers always yield
// the same recommendation, and a recommendation never contains a test that
// is missing from the approved vocabulary.
package rules

import (
	"bytes"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier classifies a test name against the catalogue.
type Tier string

const (
	TierBaseline   Tier = "baseline"
	TierOptional   Tier = "optional"
	TierUnapproved Tier = "unapproved"
)

// SymptomRule adds Tests whenever Keyword occurs in the lowercased input.
type SymptomRule struct {
	Keyword string   `json:"keyword" yaml:"keyword"`
	Tests   []string `json:"tests" yaml:"tests"`
}

var baselineTests = []string{
	"CBC",
	"Serum Ferritin",
	"Vitamin D 25-OH",
	"Vitamin B12",
	"Folate",
	"Iron Panel",
	"TSH",
	"Zinc",
	"Magnesium",
	"CMP/LFT",
}

var optionalTests = []string{
	"CRP",
	"HbA1c",
	"Lipid Profile",
	"tTG-IgA (Coeliac)",
	"Total IgA",
	"Lead (Blood)",
}

// Order matters only for Result.Matched.
// "Electrolytes" and the bare "Ferritin" are not in the catalogue and are
// removed by the vocabulary filter.
var symptomRules = []SymptomRule{
	{Keyword: "constipation", Tests: []string{"Serum Ferritin", "Zinc", "Magnesium"}},
	{Keyword: "diarrhoea", Tests: []string{"Electrolytes", "CRP"}},
	{Keyword: "pica", Tests: []string{"Serum Ferritin", "CBC", "Lead (Blood)"}},
	{Keyword: "sleep", Tests: []string{"Vitamin D 25-OH", "Ferritin"}},
	{Keyword: "hyperactivity", Tests: []string{"Ferritin", "Vitamin D 25-OH", "TSH"}},
	{Keyword: "poor appetite", Tests: []string{"CBC", "Iron Panel", "Zinc"}},
	{Keyword: "overweight", Tests: []string{"HbA1c", "Lipid Profile"}},
	{Keyword: "underweight", Tests: []string{"CBC", "CMP/LFT", "TSH"}},
	{Keyword: "gi", Tests: []string{"tTG-IgA (Coeliac)", "Total IgA"}},
}

var approvedSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(baselineTests)+len(optionalTests))
	for _, t := range baselineTests {
		set[t] = struct{}{}
	}
	for _, t := range optionalTests {
		set[t] = struct{}{}
	}
	return set
}()

var baselineSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(baselineTests))
	for _, t := range baselineTests {
		set[t] = struct{}{}
	}
	return set
}()

// ApprovedTests returns the approved vocabulary sorted lexicographically.
func ApprovedTests() []string {
	out := make([]string, 0, len(approvedSet))
	for t := range approvedSet {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// BaselineTests returns the tests recommended for every child.
func BaselineTests() []string {
	return slices.Clone(baselineTests)
}

// OptionalTests returns the approved tests that are only added by a symptom rule.
func OptionalTests() []string {
	return slices.Clone(optionalTests)
}

// SymptomRules returns a copy of the keyword table in evaluation order.
func SymptomRules() []SymptomRule {
	out := make([]SymptomRule, len(symptomRules))
	for i, r := range symptomRules {
		out[i] = SymptomRule{Keyword: r.Keyword, Tests: slices.Clone(r.Tests)}
	}
	return out
}

// IsApproved reports whether name is in the approved vocabulary. Matching is exact.
func IsApproved(name string) bool {
	_, ok := approvedSet[name]
	return ok
}

// TierOf classifies a test name.
func TierOf(name string) Tier {
	if _, ok := baselineSet[name]; ok {
		return TierBaseline
	}
	if IsApproved(name) {
		return TierOptional
	}
	return TierUnapproved
}

// Result is the outcome of a rule evaluation.
type Result struct {
	// Approved is the whole vocabulary, sorted.
	Approved []string `json:"approved" yaml:"approved"`
	// RuleBased is the sorted, deduplicated recommendation. Always a subset of Approved.
	RuleBased []string `json:"rule_based" yaml:"rule_based"`
	// Matched lists the keywords that fired, in table order.
	Matched []string `json:"matched,omitempty" yaml:"-"`
	// Dropped lists rule outputs removed by the vocabulary filter, sorted.
	Dropped []string `json:"dropped,omitempty" yaml:"-"`
}

// Recommend evaluates the symptom table against the concatenation of
// context and answers. Keywords match as case-insensitive substrings, so
// "gi" also fires inside longer words.
func Recommend(context, answers string) Result {
	text := strings.ToLower(context + "\n" + answers)

	picked := make(map[string]struct{}, len(approvedSet))
	for _, t := range baselineTests {
		picked[t] = struct{}{}
	}

	var matched []string
	for _, rule := range symptomRules {
		if !strings.Contains(text, rule.Keyword) {
			continue
		}
		matched = append(matched, rule.Keyword)
		for _, t := range rule.Tests {
			picked[t] = struct{}{}
		}
	}

	ruleBased := make([]string, 0, len(picked))
	var dropped []string
	for t := range picked {
		if IsApproved(t) {
			ruleBased = append(ruleBased, t)
		} else {
			dropped = append(dropped, t)
		}
	}
	slices.Sort(ruleBased)
	slices.Sort(dropped)

	return Result{
		Approved:  ApprovedTests(),
		RuleBased: ruleBased,
		Matched:   matched,
		Dropped:   dropped,
	}
}

// YAML renders the approved and rule-based lists in the form embedded into
// the test recommendation prompt.
func (r Result) YAML() string {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	// A struct of string slices always encodes.
	_ = enc.Encode(r)
	_ = enc.Close()
	return buf.String()
}
