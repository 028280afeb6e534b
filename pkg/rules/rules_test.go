package rules

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var sortedBaseline = []string{
	"CBC",
	"CMP/LFT",
	"Folate",
	"Iron Panel",
	"Magnesium",
	"Serum Ferritin",
	"TSH",
	"Vitamin B12",
	"Vitamin D 25-OH",
	"Zinc",
}

func TestApprovedTests_SortedVocabulary(t *testing.T) {
	approved := ApprovedTests()

	assert.Len(t, approved, 16)
	assert.True(t, slices.IsSorted(approved))
	for _, name := range BaselineTests() {
		assert.Contains(t, approved, name)
	}
	for _, name := range OptionalTests() {
		assert.Contains(t, approved, name)
	}
	assert.Equal(t, "tTG-IgA (Coeliac)", approved[len(approved)-1])
}

func TestAccessorsReturnCopies(t *testing.T) {
	b := BaselineTests()
	b[0] = "mutated"
	assert.Equal(t, "CBC", BaselineTests()[0])

	r := SymptomRules()
	r[0].Tests[0] = "mutated"
	assert.Equal(t, "Serum Ferritin", SymptomRules()[0].Tests[0])
}

func TestRecommend_EmptyInputIsBaseline(t *testing.T) {
	res := Recommend("", "")

	assert.Equal(t, sortedBaseline, res.RuleBased)
	assert.Empty(t, res.Matched)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, ApprovedTests(), res.Approved)
}

func TestRecommend_Pica(t *testing.T) {
	res := Recommend("Child shows pica behaviours.", "")

	assert.Subset(t, res.RuleBased, []string{"Serum Ferritin", "CBC", "Lead (Blood)"})
	assert.Equal(t, []string{"pica"}, res.Matched)
	assert.Len(t, res.RuleBased, len(sortedBaseline)+1)
}

func TestRecommend_DiarrhoeaDropsElectrolytes(t *testing.T) {
	res := Recommend("", "Ongoing diarrhoea for two weeks")

	assert.Contains(t, res.RuleBased, "CRP")
	assert.NotContains(t, res.RuleBased, "Electrolytes")
	assert.Equal(t, []string{"Electrolytes"}, res.Dropped)
}

func TestRecommend_SleepDropsBareFerritin(t *testing.T) {
	res := Recommend("difficulty with sleep onset", "")

	assert.NotContains(t, res.RuleBased, "Ferritin")
	assert.Contains(t, res.RuleBased, "Serum Ferritin")
	assert.Contains(t, res.Dropped, "Ferritin")
}

func TestRecommend_CaseInsensitive(t *testing.T) {
	lower := Recommend("constipation and hyperactivity", "")
	upper := Recommend("CONSTIPATION and Hyperactivity", "")

	assert.Equal(t, lower, upper)
	assert.Equal(t, []string{"constipation", "hyperactivity"}, upper.Matched)
}

func TestRecommend_KeywordInsideLongerWord(t *testing.T) {
	res := Recommend("", "She is giving feedback about meals")

	assert.Equal(t, []string{"gi"}, res.Matched)
	assert.Contains(t, res.RuleBased, "Total IgA")
	assert.Contains(t, res.RuleBased, "tTG-IgA (Coeliac)")
}

func TestRecommend_MatchesAcrossContextAndAnswers(t *testing.T) {
	res := Recommend("poor appetite at night", "overweight per last check")

	assert.Equal(t, []string{"poor appetite", "overweight"}, res.Matched)
	assert.Contains(t, res.RuleBased, "Lipid Profile")
	assert.Contains(t, res.RuleBased, "HbA1c")
}

func TestRecommend_Invariants(t *testing.T) {
	inputs := []struct {
		context string
		answers string
	}{
		{"", ""},
		{"pica", ""},
		{"underweight, sleep issues, hyperactivity", "diarrhoea and constipation alternate"},
		{"GI discomfort", "overweight; poor appetite"},
		{"no concerns", "eats well"},
		{"पिका", "ünïcödé"},
	}

	for _, in := range inputs {
		res := Recommend(in.context, in.answers)
		again := Recommend(in.context, in.answers)

		assert.Equal(t, res, again, "deterministic for %q", in.context)
		assert.Equal(t, ApprovedTests(), res.Approved, "approved vocabulary for %q", in.context)
		assert.True(t, slices.IsSorted(res.Approved))
		assert.Subset(t, res.Approved, res.RuleBased)
		assert.Subset(t, res.RuleBased, BaselineTests())
		assert.True(t, slices.IsSorted(res.RuleBased))
		assert.Len(t, slices.Compact(slices.Clone(res.RuleBased)), len(res.RuleBased))
		for _, name := range res.RuleBased {
			assert.True(t, IsApproved(name), name)
		}
	}
}

func TestTierOf(t *testing.T) {
	assert.Equal(t, TierBaseline, TierOf("CBC"))
	assert.Equal(t, TierOptional, TierOf("Lead (Blood)"))
	assert.Equal(t, TierUnapproved, TierOf("Electrolytes"))
	assert.Equal(t, TierUnapproved, TierOf("cbc"))
}

func TestResultYAML(t *testing.T) {
	res := Recommend("pica", "")
	out := res.YAML()

	assert.Contains(t, out, "approved:")
	assert.Contains(t, out, "rule_based:")
	assert.NotContains(t, out, "matched")

	var decoded struct {
		Approved  []string `yaml:"approved"`
		RuleBased []string `yaml:"rule_based"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, res.Approved, decoded.Approved)
	assert.Equal(t, res.RuleBased, decoded.RuleBased)
}
