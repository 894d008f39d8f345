package models

// ImpactTag is the closed set a theme's assessed impact is drawn from
// (spec §4.8).
type ImpactTag string

const (
	ImpactPositive ImpactTag = "positive"
	ImpactNegative ImpactTag = "negative"
	ImpactNone     ImpactTag = "none"
	ImpactUnknown  ImpactTag = "unknown"
)

// ThemeEntry is one of the 21 Belgian impact themes as populated by the
// chairman synthesis and parsed by the section extractor (spec §4.7, §4.8).
type ThemeEntry struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Impact      ImpactTag `json:"impact"`
	Explanation string    `json:"explanation"`
	Citations   []string  `json:"citations"`
}

// SectionName is the closed set of headings the chairman output is split
// into (spec §4.8).
type SectionName string

const (
	SectionBackground       SectionName = "Background and Problem Definition"
	SectionExecutiveSummary SectionName = "Executive Summary"
	SectionProposalOverview SectionName = "Proposal Overview"
	SectionThemes           SectionName = "21 Belgian Impact Themes Assessment"
	SectionOverallSummary   SectionName = "Overall Assessment Summary"
)

// SectionNames enumerates the closed set in the order spec §4.8 lists them.
var SectionNames = []SectionName{
	SectionBackground,
	SectionExecutiveSummary,
	SectionProposalOverview,
	SectionThemes,
	SectionOverallSummary,
}

// ThemeTitles holds the fixed English titles of the 21 Belgian RIA impact
// themes (1-indexed), grounded on chunking_engine.py's
// BELGIAN_THEME_TO_CATEGORY comments (the source names each theme in
// French; these are the titles a synthesized English-language assessment
// is expected to use).
var ThemeTitles = map[int]string{
	1:  "Fighting Poverty",
	2:  "Equal Opportunities and Social Cohesion",
	3:  "Equality Between Women and Men",
	4:  "Health",
	5:  "Employment",
	6:  "Consumption and Production",
	7:  "Economic Development",
	8:  "Investment",
	9:  "Research and Development",
	10: "Small and Medium-Sized Enterprises",
	11: "Administrative Burden",
	12: "Energy",
	13: "Mobility",
	14: "Food",
	15: "Climate Change",
	16: "Natural Resources",
	17: "Outdoor and Indoor Air Quality",
	18: "Biodiversity",
	19: "Nuisances",
	20: "Government",
	21: "Policy Coherence for Development",
}

// StructuredAssessment is the parsed output of C8 (spec §4.8): a mapping
// over the closed set of section names plus the fixed 21-entry theme list.
type StructuredAssessment struct {
	Sections  map[SectionName]string `json:"sections"`
	Themes    []ThemeEntry           `json:"themes"` // always length 21
	Citations []string               `json:"citations"`
}

// NewStructuredAssessment returns a skeleton with all 21 themes present as
// impact=unknown, so missing chairman output never crashes the extractor
// (spec §4.8 output invariants).
func NewStructuredAssessment() *StructuredAssessment {
	sa := &StructuredAssessment{
		Sections: make(map[SectionName]string),
		Themes:   make([]ThemeEntry, ThemeCount),
	}
	for i := 0; i < ThemeCount; i++ {
		sa.Themes[i] = ThemeEntry{
			Number:      i + 1,
			Title:       ThemeTitles[i+1],
			Impact:      ImpactUnknown,
			Explanation: "missing in synthesis",
		}
	}
	return sa
}
