package dna

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSample_PartialRecord(t *testing.T) {
	s, err := ParseSample([]byte(`{
		"makeup_analysis": {"eye_pattern": {"shape": "cat_eye", "shadow_tones": "warm brown"}},
		"five_metrics": {"visual_weight_score": 0, "canthal_tilt": {"angle_degrees": 4.5}}
	}`))
	require.NoError(t, err)

	require.NotNil(t, s.MakeupAnalysis)
	require.NotNil(t, s.MakeupAnalysis.EyePattern)
	assert.Equal(t, "cat_eye", s.MakeupAnalysis.EyePattern.Shape)
	assert.Empty(t, s.MakeupAnalysis.EyePattern.ShadowTones, "non-list value decodes as empty")
	assert.Nil(t, s.MakeupAnalysis.LipPattern)

	require.NotNil(t, s.FiveMetrics)
	require.NotNil(t, s.FiveMetrics.VisualWeightScore, "explicit zero is present")
	assert.Equal(t, 0.0, *s.FiveMetrics.VisualWeightScore)
	assert.Nil(t, s.FiveMetrics.CanthalTilt.Classification)
	assert.Nil(t, s.FiveMetrics.MidfaceRatio)
	assert.Nil(t, s.AdaptationRules)
}

func TestStringList_DropsNonStrings(t *testing.T) {
	var l StringList
	require.NoError(t, json.Unmarshal([]byte(`["cheekbone", 3, null, "nose_bridge", {"a": 1}]`), &l))
	assert.Equal(t, StringList{"cheekbone", "nose_bridge"}, l)

	require.NoError(t, json.Unmarshal([]byte(`{"not": "a list"}`), &l))
	assert.Empty(t, l)
}

func TestParseSample_RejectsNonObject(t *testing.T) {
	_, err := ParseSample([]byte(`["not", "an", "object"]`))
	assert.Error(t, err)

	_, err = ParseSample([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseSample_RejectsEmptySample(t *testing.T) {
	for _, in := range []string{`null`, `{}`, `{"unexpected": 1}`, `{"five_metrics": null}`} {
		s, err := ParseSample([]byte(in))
		assert.ErrorIs(t, err, ErrEmptySample, "input %s", in)
		assert.Nil(t, s, "input %s", in)
	}

	s, err := ParseSample([]byte(`{"adaptation_rules": {"L1_L2": "soft liner"}}`))
	require.NoError(t, err)
	assert.NotNil(t, s.AdaptationRules)
}

func TestProfile_JSONShape(t *testing.T) {
	p := Profile{
		SubjectID:      "jennie",
		SubjectName:    "Jennie Kim",
		FramesAnalyzed: 3,
		TotalFrames:    4,
		Category:       "kpop",
	}
	p.FiveMetrics.VisualWeightScore = 70
	p.AdaptationRules.L5L6 = "deepen the base"

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))

	assert.Equal(t, "jennie", generic["celeb_id"])
	assert.Equal(t, float64(3), generic["frames_analyzed"])
	assert.Equal(t, float64(4), generic["total_frames"])
	assert.Contains(t, generic, "makeup_analysis")
	assert.NotContains(t, generic, "signature_look", "empty metadata is omitted")
	metrics := generic["five_metrics"].(map[string]any)
	assert.Equal(t, float64(70), metrics["visual_weight_score"])
	rules := generic["adaptation_rules"].(map[string]any)
	assert.Equal(t, "deepen the base", rules["L5_L6"])
}
