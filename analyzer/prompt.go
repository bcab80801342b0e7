package analyzer

// makeupDNAPrompt asks for one frame's Makeup DNA as JSON. The subject name
// is substituted for %s.
const makeupDNAPrompt = `You are a world-class K-beauty makeup analyst and facial metrics expert.
Analyze the provided image of a celebrity or makeup tutorial frame.

Extract the following structured data as JSON. Be precise and data-driven.

## 1. Makeup Analysis

- eye_pattern:
  - shape: (e.g. "cat_eye", "puppy_eye", "smoky", "cut_crease", "gradient", "natural", "elongated", "round")
  - liner_style: ("sharp_wing", "soft_wing", "tight_line", "smudged", "none")
  - shadow_placement: ("lid_only", "crease_blend", "outer_v", "halo", "editorial")
  - shadow_tones: list of color descriptions (e.g. ["warm brown", "copper shimmer"])
  - lash_emphasis: ("natural", "dramatic", "wispy", "volumized")
- lip_pattern:
  - technique: ("gradient_lip", "full_lip", "blotted", "ombre", "overlined", "natural")
  - color_family: ("MLBB", "red", "coral", "berry", "nude", "pink")
  - finish: ("matte", "glossy", "velvet", "satin", "dewy")
  - inner_color_intensity: ("soft", "medium", "bold")
- base_pattern:
  - coverage: ("sheer", "light", "medium", "full")
  - finish: ("matte", "dewy", "glass_skin", "satin", "natural")
  - highlight_placement: list (e.g. ["cheekbone", "nose_bridge", "brow_bone", "cupids_bow"])
  - contour_intensity: ("none", "subtle", "moderate", "sculpted")
  - blush_style: ("apple_cheek", "draping", "sunkissed", "igari", "none")
- balance_rule: the overall balance philosophy in one sentence.

## 2. Five Metrics

- visual_weight_score: 0-100 integer. 0 = bare face, 100 = full editorial makeup.
- canthal_tilt:
  - angle_degrees: float, tilt of the eye axis from horizontal. Positive = upward.
  - classification: ("positive", "neutral", "negative")
- midface_ratio:
  - ratio_percent: float, midface length as a percentage of total face height.
  - philtrum_relative: ("short", "average", "long")
  - youth_score: 0-100 integer.
- luminosity_score:
  - current: 0-100 integer.
  - potential_with_kglow: 0-100 integer, score with K-beauty glass skin techniques.
  - texture_grade: ("A+", "A", "B+", "B", "C+", "C")
- harmony_index:
  - overall: 0-100 integer.
  - symmetry_score: 0-100 integer.
  - optimal_balance: what makes this look harmonious or how to improve it.

## 3. Adaptation Rules

Melanin-aware guidance per Fitzpatrick range:
- L1_L2: very light to light skin (I-II): undertone shifts, opacity, highlight/contour changes.
- L3_L4: light-medium to medium skin (III-IV): color depth, blending, shade matching.
- L5_L6: medium-dark to dark skin (V-VI): pigment intensity, base shades, highlight/contour recalibration.

## Celebrity Context

The celebrity being analyzed is: %s

Use your knowledge of this celebrity's known makeup style to enhance accuracy.
If the face is not clearly visible, analyze what is visible and note limitations.

## Output Format

Return ONLY valid JSON with this exact structure (no markdown, no extra text):

{
  "makeup_analysis": {
    "eye_pattern": {"shape": "", "liner_style": "", "shadow_placement": "", "shadow_tones": [], "lash_emphasis": ""},
    "lip_pattern": {"technique": "", "color_family": "", "finish": "", "inner_color_intensity": ""},
    "base_pattern": {"coverage": "", "finish": "", "highlight_placement": [], "contour_intensity": "", "blush_style": ""},
    "balance_rule": ""
  },
  "five_metrics": {
    "visual_weight_score": 0,
    "canthal_tilt": {"angle_degrees": 0.0, "classification": ""},
    "midface_ratio": {"ratio_percent": 0.0, "philtrum_relative": "", "youth_score": 0},
    "luminosity_score": {"current": 0, "potential_with_kglow": 0, "texture_grade": ""},
    "harmony_index": {"overall": 0, "symmetry_score": 0, "optimal_balance": ""}
  },
  "adaptation_rules": {"L1_L2": "", "L3_L4": "", "L5_L6": ""}
}
`
