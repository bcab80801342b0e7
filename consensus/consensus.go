// Package consensus fuses the per-frame samples of one subject into a single
// consolidated record.
//
// Every leaf field is reduced on its own:
//   - numeric metrics: mean over all samples, an absent value counting as 0
//   - classifications: most frequent value, absent values counting as the
//     field's documented default
//   - pattern strings and free text: most frequent non-empty value
//   - string lists: the five most frequent items across all samples
//   - adaptation rules: the longest non-empty text per tier
//
// Ties always go to the value seen first in sample order, so the result is
// a pure function of the ordered input.
package consensus

import (
	"math"
	"sort"
	"strconv"
	"unicode/utf8"

	"celeb-dna-collector/dna"
)

// TopListItems bounds merged string lists.
const TopListItems = 5

// Merge reduces samples into one Consolidated record. The caller must pass
// at least one sample; Merge never fails, missing data degrades to defaults.
func Merge(samples []dna.Sample) dna.Consolidated {
	return dna.Consolidated{
		MakeupAnalysis:  mergePatterns(samples),
		FiveMetrics:     mergeMetrics(samples),
		AdaptationRules: mergeRules(samples),
	}
}

func mergePatterns(samples []dna.Sample) dna.PatternSummary {
	eyes := collect(samples, eyeOf)
	lips := collect(samples, lipOf)
	bases := collect(samples, baseOf)

	return dna.PatternSummary{
		EyePattern: dna.EyeSummary{
			Shape:           modeNonEmpty(collect(eyes, func(e dna.EyePattern) string { return e.Shape })),
			LinerStyle:      modeNonEmpty(collect(eyes, func(e dna.EyePattern) string { return e.LinerStyle })),
			ShadowPlacement: modeNonEmpty(collect(eyes, func(e dna.EyePattern) string { return e.ShadowPlacement })),
			LashEmphasis:    modeNonEmpty(collect(eyes, func(e dna.EyePattern) string { return e.LashEmphasis })),
			ShadowTones:     topItems(collect(eyes, func(e dna.EyePattern) dna.StringList { return e.ShadowTones }), TopListItems),
		},
		LipPattern: dna.LipSummary{
			Technique:           modeNonEmpty(collect(lips, func(l dna.LipPattern) string { return l.Technique })),
			ColorFamily:         modeNonEmpty(collect(lips, func(l dna.LipPattern) string { return l.ColorFamily })),
			Finish:              modeNonEmpty(collect(lips, func(l dna.LipPattern) string { return l.Finish })),
			InnerColorIntensity: modeNonEmpty(collect(lips, func(l dna.LipPattern) string { return l.InnerColorIntensity })),
		},
		BasePattern: dna.BaseSummary{
			Coverage:           modeNonEmpty(collect(bases, func(b dna.BasePattern) string { return b.Coverage })),
			Finish:             modeNonEmpty(collect(bases, func(b dna.BasePattern) string { return b.Finish })),
			ContourIntensity:   modeNonEmpty(collect(bases, func(b dna.BasePattern) string { return b.ContourIntensity })),
			BlushStyle:         modeNonEmpty(collect(bases, func(b dna.BasePattern) string { return b.BlushStyle })),
			HighlightPlacement: topItems(collect(bases, func(b dna.BasePattern) dna.StringList { return b.HighlightPlacement }), TopListItems),
		},
		BalanceRule: modeNonEmpty(collect(samples, func(s dna.Sample) string {
			if s.MakeupAnalysis == nil {
				return ""
			}
			return s.MakeupAnalysis.BalanceRule
		})),
	}
}

func mergeMetrics(samples []dna.Sample) dna.MetricSummary {
	n := len(samples)
	metrics := collect(samples, metricsOf)
	canthal := collect(metrics, func(m dna.FiveMetrics) dna.CanthalTilt { return deref(m.CanthalTilt) })
	midface := collect(metrics, func(m dna.FiveMetrics) dna.MidfaceRatio { return deref(m.MidfaceRatio) })
	luminosity := collect(metrics, func(m dna.FiveMetrics) dna.LuminosityScore { return deref(m.LuminosityScore) })
	harmony := collect(metrics, func(m dna.FiveMetrics) dna.HarmonyIndex { return deref(m.HarmonyIndex) })

	return dna.MetricSummary{
		VisualWeightScore: roundInt(mean(collect(metrics, func(m dna.FiveMetrics) float64 { return num(m.VisualWeightScore) }), n)),
		CanthalTilt: dna.CanthalSummary{
			AngleDegrees:   roundTenth(mean(collect(canthal, func(c dna.CanthalTilt) float64 { return num(c.AngleDegrees) }), n)),
			Classification: mode(collect(canthal, func(c dna.CanthalTilt) string { return str(c.Classification, dna.DefaultCanthalClassification) })),
		},
		MidfaceRatio: dna.MidfaceSummary{
			RatioPercent:     roundTenth(mean(collect(midface, func(m dna.MidfaceRatio) float64 { return num(m.RatioPercent) }), n)),
			PhiltrumRelative: mode(collect(midface, func(m dna.MidfaceRatio) string { return str(m.PhiltrumRelative, dna.DefaultPhiltrumRelative) })),
			YouthScore:       roundInt(mean(collect(midface, func(m dna.MidfaceRatio) float64 { return num(m.YouthScore) }), n)),
		},
		LuminosityScore: dna.LuminositySummary{
			Current:            roundInt(mean(collect(luminosity, func(l dna.LuminosityScore) float64 { return num(l.Current) }), n)),
			PotentialWithKGlow: roundInt(mean(collect(luminosity, func(l dna.LuminosityScore) float64 { return num(l.PotentialWithKGlow) }), n)),
			TextureGrade:       mode(collect(luminosity, func(l dna.LuminosityScore) string { return str(l.TextureGrade, dna.DefaultTextureGrade) })),
		},
		HarmonyIndex: dna.HarmonySummary{
			Overall:        roundInt(mean(collect(harmony, func(h dna.HarmonyIndex) float64 { return num(h.Overall) }), n)),
			SymmetryScore:  roundInt(mean(collect(harmony, func(h dna.HarmonyIndex) float64 { return num(h.SymmetryScore) }), n)),
			OptimalBalance: modeNonEmpty(collect(harmony, func(h dna.HarmonyIndex) string { return h.OptimalBalance })),
		},
	}
}

func mergeRules(samples []dna.Sample) dna.AdaptationRules {
	rules := collect(samples, func(s dna.Sample) dna.AdaptationRules { return deref(s.AdaptationRules) })
	return dna.AdaptationRules{
		L1L2: longest(collect(rules, func(r dna.AdaptationRules) string { return r.L1L2 })),
		L3L4: longest(collect(rules, func(r dna.AdaptationRules) string { return r.L3L4 })),
		L5L6: longest(collect(rules, func(r dna.AdaptationRules) string { return r.L5L6 })),
	}
}

// --- accessors: absent sections read as all-fields-absent ---

func eyeOf(s dna.Sample) dna.EyePattern {
	if s.MakeupAnalysis == nil {
		return dna.EyePattern{}
	}
	return deref(s.MakeupAnalysis.EyePattern)
}

func lipOf(s dna.Sample) dna.LipPattern {
	if s.MakeupAnalysis == nil {
		return dna.LipPattern{}
	}
	return deref(s.MakeupAnalysis.LipPattern)
}

func baseOf(s dna.Sample) dna.BasePattern {
	if s.MakeupAnalysis == nil {
		return dna.BasePattern{}
	}
	return deref(s.MakeupAnalysis.BasePattern)
}

func metricsOf(s dna.Sample) dna.FiveMetrics {
	return deref(s.FiveMetrics)
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

func num(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func str(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func collect[S, T any](items []S, get func(S) T) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = get(item)
	}
	return out
}

// --- reductions ---

// mean divides by n, not by len(values), so absent fields pull toward zero.
func mean(values []float64, n int) float64 {
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(n)
}

// roundInt rounds half to even.
func roundInt(x float64) int {
	return int(math.RoundToEven(x))
}

// roundTenth rounds the exact value of x to one decimal, ties to even.
// 1.05 is stored as 1.0500000000000000444 and so becomes 1.1.
func roundTenth(x float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 1, 64), 64)
	if err != nil {
		return x
	}
	return r
}

// tally counts values, remembering first-seen order.
func tally(values []string) (order []string, counts map[string]int) {
	counts = make(map[string]int, len(values))
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	return order, counts
}

// mode returns the most frequent value, or "" for no values.
func mode(values []string) string {
	order, counts := tally(values)
	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

func modeNonEmpty(values []string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return mode(kept)
}

// topItems flattens lists and keeps the k most frequent items.
func topItems(lists []dna.StringList, k int) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	order, counts := tally(all)
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > k {
		order = order[:k]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// longest returns the non-empty value with the most characters.
func longest(values []string) string {
	best, bestLen := "", 0
	for _, v := range values {
		if n := utf8.RuneCountInString(v); n > bestLen {
			best, bestLen = v, n
		}
	}
	return best
}
