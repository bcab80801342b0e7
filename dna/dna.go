// Package dna holds the Makeup DNA data model: one Sample per analyzed frame
// and the Consolidated record the consensus engine builds from them.
//
// Sample fields that the analyzer may omit are pointers (or StringList),
// so "absent" and "zero" stay distinguishable until the merge decides which
// default applies.
package dna

import (
	"encoding/json"
	"errors"
)

// Sample is the structured analysis of a single frame.
type Sample struct {
	MakeupAnalysis  *MakeupAnalysis  `json:"makeup_analysis,omitempty"`
	FiveMetrics     *FiveMetrics     `json:"five_metrics,omitempty"`
	AdaptationRules *AdaptationRules `json:"adaptation_rules,omitempty"`
}

// MakeupAnalysis is the categorical pattern section.
type MakeupAnalysis struct {
	EyePattern  *EyePattern  `json:"eye_pattern,omitempty"`
	LipPattern  *LipPattern  `json:"lip_pattern,omitempty"`
	BasePattern *BasePattern `json:"base_pattern,omitempty"`
	BalanceRule string       `json:"balance_rule"`
}

type EyePattern struct {
	Shape           string     `json:"shape"`
	LinerStyle      string     `json:"liner_style"`
	ShadowPlacement string     `json:"shadow_placement"`
	ShadowTones     StringList `json:"shadow_tones"`
	LashEmphasis    string     `json:"lash_emphasis"`
}

type LipPattern struct {
	Technique           string `json:"technique"`
	ColorFamily         string `json:"color_family"`
	Finish              string `json:"finish"`
	InnerColorIntensity string `json:"inner_color_intensity"`
}

type BasePattern struct {
	Coverage           string     `json:"coverage"`
	Finish             string     `json:"finish"`
	HighlightPlacement StringList `json:"highlight_placement"`
	ContourIntensity   string     `json:"contour_intensity"`
	BlushStyle         string     `json:"blush_style"`
}

// FiveMetrics is the numeric metrics section of a Sample.
type FiveMetrics struct {
	VisualWeightScore *float64         `json:"visual_weight_score,omitempty"`
	CanthalTilt       *CanthalTilt     `json:"canthal_tilt,omitempty"`
	MidfaceRatio      *MidfaceRatio    `json:"midface_ratio,omitempty"`
	LuminosityScore   *LuminosityScore `json:"luminosity_score,omitempty"`
	HarmonyIndex      *HarmonyIndex    `json:"harmony_index,omitempty"`
}

type CanthalTilt struct {
	AngleDegrees   *float64 `json:"angle_degrees,omitempty"`
	Classification *string  `json:"classification,omitempty"`
}

type MidfaceRatio struct {
	RatioPercent     *float64 `json:"ratio_percent,omitempty"`
	PhiltrumRelative *string  `json:"philtrum_relative,omitempty"`
	YouthScore       *float64 `json:"youth_score,omitempty"`
}

type LuminosityScore struct {
	Current            *float64 `json:"current,omitempty"`
	PotentialWithKGlow *float64 `json:"potential_with_kglow,omitempty"`
	TextureGrade       *string  `json:"texture_grade,omitempty"`
}

type HarmonyIndex struct {
	Overall        *float64 `json:"overall,omitempty"`
	SymmetryScore  *float64 `json:"symmetry_score,omitempty"`
	OptimalBalance string   `json:"optimal_balance"`
}

// AdaptationRules is the free-text guidance keyed by Fitzpatrick tier.
// It is shared by Sample and Consolidated.
type AdaptationRules struct {
	L1L2 string `json:"L1_L2"`
	L3L4 string `json:"L3_L4"`
	L5L6 string `json:"L5_L6"`
}

// Documented defaults for metric classifications a frame may omit.
const (
	DefaultCanthalClassification = "neutral"
	DefaultPhiltrumRelative      = "average"
	DefaultTextureGrade          = "B"
)

// StringList is a list of strings that decodes leniently: a JSON value that
// is not an array decodes to an empty list, and non-string items are dropped.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = nil
		return nil
	}
	items := make(StringList, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			items = append(items, s)
		}
	}
	*l = items
	return nil
}

// Consolidated is the merge of every Sample collected for one subject.
type Consolidated struct {
	MakeupAnalysis  PatternSummary  `json:"makeup_analysis"`
	FiveMetrics     MetricSummary   `json:"five_metrics"`
	AdaptationRules AdaptationRules `json:"adaptation_rules"`
}

type PatternSummary struct {
	EyePattern  EyeSummary  `json:"eye_pattern"`
	LipPattern  LipSummary  `json:"lip_pattern"`
	BasePattern BaseSummary `json:"base_pattern"`
	BalanceRule string      `json:"balance_rule"`
}

type EyeSummary struct {
	Shape           string   `json:"shape"`
	LinerStyle      string   `json:"liner_style"`
	ShadowPlacement string   `json:"shadow_placement"`
	LashEmphasis    string   `json:"lash_emphasis"`
	ShadowTones     []string `json:"shadow_tones"`
}

type LipSummary struct {
	Technique           string `json:"technique"`
	ColorFamily         string `json:"color_family"`
	Finish              string `json:"finish"`
	InnerColorIntensity string `json:"inner_color_intensity"`
}

type BaseSummary struct {
	Coverage           string   `json:"coverage"`
	Finish             string   `json:"finish"`
	ContourIntensity   string   `json:"contour_intensity"`
	BlushStyle         string   `json:"blush_style"`
	HighlightPlacement []string `json:"highlight_placement"`
}

type MetricSummary struct {
	VisualWeightScore int               `json:"visual_weight_score"`
	CanthalTilt       CanthalSummary    `json:"canthal_tilt"`
	MidfaceRatio      MidfaceSummary    `json:"midface_ratio"`
	LuminosityScore   LuminositySummary `json:"luminosity_score"`
	HarmonyIndex      HarmonySummary    `json:"harmony_index"`
}

type CanthalSummary struct {
	AngleDegrees   float64 `json:"angle_degrees"`
	Classification string  `json:"classification"`
}

type MidfaceSummary struct {
	RatioPercent     float64 `json:"ratio_percent"`
	PhiltrumRelative string  `json:"philtrum_relative"`
	YouthScore       int     `json:"youth_score"`
}

type LuminositySummary struct {
	Current            int    `json:"current"`
	PotentialWithKGlow int    `json:"potential_with_kglow"`
	TextureGrade       string `json:"texture_grade"`
}

type HarmonySummary struct {
	Overall        int    `json:"overall"`
	SymmetryScore  int    `json:"symmetry_score"`
	OptimalBalance string `json:"optimal_balance"`
}

// Profile is a Consolidated record enriched with subject identity, frame
// bookkeeping and post-merge metadata. Its JSON form is the row upserted
// into the remote celeb_makeup_dna table.
type Profile struct {
	SubjectID   string `json:"celeb_id"`
	SubjectName string `json:"celeb_name"`
	Consolidated
	FramesAnalyzed int    `json:"frames_analyzed"`
	TotalFrames    int    `json:"total_frames"`
	Category       string `json:"category,omitempty"`
	SignatureLook  string `json:"signature_look,omitempty"`
}

// ErrEmptySample is returned by ParseSample when a response carries none of
// the three sections, including a JSON null.
var ErrEmptySample = errors.New("sample has no makeup_analysis, five_metrics or adaptation_rules")

// ParseSample decodes one analyzer response into a Sample. At least one
// section must be present.
func ParseSample(data []byte) (*Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.MakeupAnalysis == nil && s.FiveMetrics == nil && s.AdaptationRules == nil {
		return nil, ErrEmptySample
	}
	return &s, nil
}
