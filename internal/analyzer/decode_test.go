package analyzer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairImpactSigns(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"impact sign", `"impact": +30`, `"impact": 30`},
		{"no space", `{"impact":+8}`, `{"impact":8}`},
		{"newline before sign", "{\"impact\":\n  +12}", "{\"impact\":\n  12}"},
		{"negative untouched", `{"impact": -5}`, `{"impact": -5}`},
		{"no pattern is noop", `[{"id":"1","keywords":["casual"]}]`, `[{"id":"1","keywords":["casual"]}]`},
		{"plus inside string", `{"message": "ratio: +30 points, c++ rocks"}`, `{"message": "ratio: +30 points, c++ rocks"}`},
		{"escaped quote in string", `{"message": "say \": +3\"", "impact": +3}`, `{"message": "say \": +3\"", "impact": 3}`},
		{"plus not followed by digit", `{"a": +x}`, `{"a": +x}`},
		{"array element not after colon", `[+1]`, `[+1]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RepairImpactSigns(tc.in))
		})
	}
}

func TestRepairImpactSigns_Idempotent(t *testing.T) {
	in := `[{"rule_traces":[{"rule":"direct_insult","impact":+30},{"rule":"emoji_angry","impact": +8}]}]`
	once := RepairImpactSigns(in)
	assert.Equal(t, once, RepairImpactSigns(once))
}

func TestDecode_SeverityWithPlusSigns(t *testing.T) {
	raw := `[{"id":"7","author":"Jane","scores":{"emotions":{"anger":88},"moderation":{"insult":80},"overall_risk":70},
	"explainability":{"top_matched_keywords":["garbage"],"top_modifiers":["intensifier"],
	"rule_traces":[{"rule":"direct_insult","impact": +30},{"rule":"emoji_angry","impact": +8}]},
	"escalate":true,"escalation_reasons":["direct_insult"],"action_recommendation":"warn"}]`

	_, err := Decode[[]SeverityRecord](StageSeverity, raw, false)
	require.Error(t, err, "strict decode without repair must fail")

	recs, err := Decode[[]SeverityRecord](StageSeverity, raw, true)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 30, recs[0].Explainability.RuleTraces[0].Impact)
	assert.Equal(t, 8, recs[0].Explainability.RuleTraces[1].Impact)
	assert.Equal(t, 88, recs[0].Scores.Emotions[EmotionAnger])
	assert.Equal(t, 80, recs[0].Scores.Moderation[ModInsult])
}

func TestDecode_Strictness(t *testing.T) {
	bad := []string{
		"this is not json",
		"```json\n[]\n```",
		`[{"id":"1","keywords":["casual"],}]`,
		`[{'id':'1'}]`,
		`[{"id":"1"}] trailing`,
		`{"id":"1"}`,
		``,
	}
	for _, raw := range bad {
		recs, err := Decode[[]KeywordRecord](StageKeywords, raw, true)
		require.Error(t, err, "input %q", raw)
		assert.Nil(t, recs)
		assert.True(t, errors.Is(err, ErrDecode))

		var de *DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, raw, de.Raw)
		assert.Equal(t, StageKeywords, de.Stage)
	}
}

func TestDecode_TrimsWhitespace(t *testing.T) {
	recs, err := Decode[[]KeywordRecord](StageKeywords, "\n  [{\"id\":\"1\",\"author\":\"a\",\"keywords\":[\"casual\"]}]  \n", false)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []Keyword{"casual"}, recs[0].Keywords)
}
