package models

import "fmt"

// PolicyCategory is a closed set of 15 high-level policy tags that double
// as chunk metadata and as nodes in the knowledge graph.
type PolicyCategory string

const (
	CategoryEnvironment          PolicyCategory = "Environment"
	CategoryDigital              PolicyCategory = "Digital"
	CategoryCompetition          PolicyCategory = "Competition"
	CategoryHealth               PolicyCategory = "Health"
	CategoryFundamentalRights    PolicyCategory = "Fundamental Rights"
	CategoryEmployment           PolicyCategory = "Employment"
	CategoryEconomicDevelopment  PolicyCategory = "Economic Development"
	CategorySocialCohesion       PolicyCategory = "Social Cohesion"
	CategoryEnergy               PolicyCategory = "Energy"
	CategoryTransport            PolicyCategory = "Transport"
	CategoryAgriculture          PolicyCategory = "Agriculture"
	CategoryEducation            PolicyCategory = "Education"
	CategoryResearchInnovation   PolicyCategory = "Research & Innovation"
	CategoryPublicAdministration PolicyCategory = "Public Administration"
	CategoryInternationalRel     PolicyCategory = "International Relations"
)

// PolicyCategories enumerates the closed set in a stable order.
var PolicyCategories = []PolicyCategory{
	CategoryEnvironment,
	CategoryDigital,
	CategoryCompetition,
	CategoryHealth,
	CategoryFundamentalRights,
	CategoryEmployment,
	CategoryEconomicDevelopment,
	CategorySocialCohesion,
	CategoryEnergy,
	CategoryTransport,
	CategoryAgriculture,
	CategoryEducation,
	CategoryResearchInnovation,
	CategoryPublicAdministration,
	CategoryInternationalRel,
}

// IsValidCategory reports whether c belongs to the closed set.
func IsValidCategory(c PolicyCategory) bool {
	for _, v := range PolicyCategories {
		if v == c {
			return true
		}
	}
	return false
}

// ParseCategory validates a raw string against the closed set, turning an
// unknown category into an ingestion-time error rather than a
// retrieval-time surprise (spec §9).
func ParseCategory(raw string) (PolicyCategory, error) {
	c := PolicyCategory(raw)
	if !IsValidCategory(c) {
		return "", fmt.Errorf("unknown policy category %q", raw)
	}
	return c, nil
}

// Domain is a closed set of 6 analytical dimensions.
type Domain string

const (
	DomainLegal          Domain = "legal"
	DomainEconomic       Domain = "economic"
	DomainTechnological  Domain = "technological"
	DomainSocial         Domain = "social"
	DomainEnvironmental  Domain = "environmental"
	DomainAdministrative Domain = "administrative"
)

var Domains = []Domain{
	DomainLegal,
	DomainEconomic,
	DomainTechnological,
	DomainSocial,
	DomainEnvironmental,
	DomainAdministrative,
}

func IsValidDomain(d Domain) bool {
	for _, v := range Domains {
		if v == d {
			return true
		}
	}
	return false
}

// AnalysisPattern is a closed set of 7 analytical methodologies, spelled
// hyphenated here. original_source/backend/knowledge_graph.py uses
// underscore/suffix spellings (cost_benefit, stakeholder_analysis,
// subsidiarity_analysis); the hyphenated form is the canonical one this
// codebase exposes at its boundaries.
type AnalysisPattern string

const (
	PatternCostBenefit        AnalysisPattern = "cost-benefit"
	PatternRiskBased          AnalysisPattern = "risk-based"
	PatternMarketFailure      AnalysisPattern = "market-failure"
	PatternStakeholder        AnalysisPattern = "stakeholder"
	PatternImpactAssessment   AnalysisPattern = "impact-assessment"
	PatternBaselineComparison AnalysisPattern = "baseline-comparison"
	PatternSubsidiarity       AnalysisPattern = "subsidiarity"
)

var AnalysisPatterns = []AnalysisPattern{
	PatternCostBenefit,
	PatternRiskBased,
	PatternMarketFailure,
	PatternStakeholder,
	PatternImpactAssessment,
	PatternBaselineComparison,
	PatternSubsidiarity,
}

func IsValidPattern(p AnalysisPattern) bool {
	for _, v := range AnalysisPatterns {
		if v == p {
			return true
		}
	}
	return false
}

// CategoryToDomains maps each policy category to the domains it
// participates in, grounded on knowledge_graph.py's CATEGORY_TO_DOMAINS.
var CategoryToDomains = map[PolicyCategory][]Domain{
	CategoryEnvironment:          {DomainEnvironmental, DomainLegal, DomainEconomic},
	CategoryDigital:              {DomainTechnological, DomainLegal, DomainEconomic},
	CategoryCompetition:          {DomainEconomic, DomainLegal},
	CategoryHealth:               {DomainSocial, DomainLegal, DomainEconomic},
	CategoryFundamentalRights:    {DomainLegal, DomainSocial},
	CategoryEmployment:           {DomainEconomic, DomainSocial, DomainLegal},
	CategoryEconomicDevelopment:  {DomainEconomic, DomainLegal},
	CategoryEnergy:               {DomainEnvironmental, DomainEconomic, DomainTechnological},
	CategoryTransport:            {DomainEconomic, DomainEnvironmental, DomainTechnological},
	CategoryAgriculture:          {DomainEconomic, DomainEnvironmental, DomainSocial},
	CategoryEducation:            {DomainSocial, DomainEconomic},
	CategoryResearchInnovation:   {DomainTechnological, DomainEconomic},
	CategoryPublicAdministration: {DomainAdministrative, DomainLegal},
	CategoryInternationalRel:     {DomainLegal, DomainEconomic, DomainSocial},
	CategorySocialCohesion:       {DomainSocial, DomainLegal},
}

// AnalysisTypeToPatterns maps a chunk's analysis_type metadata to the
// patterns it signals, grounded on knowledge_graph.py's
// ANALYSIS_TYPE_TO_PATTERNS.
var AnalysisTypeToPatterns = map[string][]AnalysisPattern{
	"problem_definition":           {PatternRiskBased, PatternMarketFailure},
	"policy_option":                {PatternCostBenefit, PatternBaselineComparison},
	"impact_assessment":            {PatternImpactAssessment, PatternStakeholder},
	"baseline":                     {PatternBaselineComparison},
	"administrative_burdens":       {PatternCostBenefit},
	"stakeholder_analysis":         {PatternStakeholder},
	"cost_benefit_analysis":        {PatternCostBenefit},
	"subsidiarity_proportionality": {PatternSubsidiarity},
}

// PatternToDomains maps each analysis pattern to the domains it is
// typically exercised in, grounded on knowledge_graph.py's
// pattern_domain_mapping.
var PatternToDomains = map[AnalysisPattern][]Domain{
	PatternCostBenefit:        {DomainEconomic},
	PatternRiskBased:          {DomainLegal, DomainEnvironmental},
	PatternMarketFailure:      {DomainEconomic},
	PatternStakeholder:        {DomainSocial, DomainLegal},
	PatternImpactAssessment:   {DomainLegal, DomainEnvironmental, DomainSocial},
	PatternBaselineComparison: {DomainEconomic, DomainEnvironmental},
	PatternSubsidiarity:       {DomainLegal, DomainAdministrative},
}

// BelgianThemeToCategory maps each of the 21 Belgian impact themes (1..21)
// to the policy categories it touches, grounded on chunking_engine.py's
// BELGIAN_THEME_TO_CATEGORY.
var BelgianThemeToCategory = map[int][]PolicyCategory{
	1:  {CategorySocialCohesion, CategoryFundamentalRights},
	2:  {CategorySocialCohesion, CategoryFundamentalRights},
	3:  {CategoryFundamentalRights, CategorySocialCohesion},
	4:  {CategoryHealth},
	5:  {CategoryEmployment, CategoryEconomicDevelopment},
	6:  {CategoryEconomicDevelopment, CategoryEnvironment},
	7:  {CategoryEconomicDevelopment},
	8:  {CategoryEconomicDevelopment},
	9:  {CategoryResearchInnovation, CategoryEconomicDevelopment},
	10: {CategoryEconomicDevelopment, CategoryCompetition},
	11: {CategoryPublicAdministration, CategoryEconomicDevelopment},
	12: {CategoryEnergy, CategoryEnvironment},
	13: {CategoryTransport, CategoryEnvironment},
	14: {CategoryHealth, CategoryAgriculture},
	15: {CategoryEnvironment, CategoryEnergy},
	16: {CategoryEnvironment},
	17: {CategoryEnvironment, CategoryHealth},
	18: {CategoryEnvironment},
	19: {CategoryEnvironment, CategoryHealth},
	20: {CategoryPublicAdministration},
	21: {CategoryInternationalRel, CategoryEconomicDevelopment},
}

// ThemeCount is the fixed number of Belgian impact themes (§4.8).
const ThemeCount = 21

// EUDomainKeywords holds the per-category keyword signatures used by C5's
// feature-extraction step as the synonym table spec.md §4.5 gestures at,
// grounded on chunking_engine.py's EU_DOMAIN_KEYWORDS.
var EUDomainKeywords = map[PolicyCategory][]string{
	CategoryEnvironment:          {"environment", "biodiversity", "climate", "nature", "ecosystem", "pollution", "emission"},
	CategoryDigital:              {"digital", "cyber", "data", "ai", "algorithm", "platform", "online", "internet"},
	CategoryCompetition:          {"competition", "market", "antitrust", "merger", "cartel", "dominance"},
	CategoryHealth:               {"health", "medical", "pharmaceutical", "disease", "treatment", "patient"},
	CategoryFundamentalRights:    {"rights", "discrimination", "equality", "freedom", "privacy", "dignity"},
	CategoryEmployment:           {"employment", "labour", "worker", "job", "unemployment", "workplace"},
	CategoryEconomicDevelopment:  {"economic", "growth", "trade", "market", "business", "sme"},
	CategoryEnergy:               {"energy", "renewable", "electricity", "power", "fuel", "carbon"},
	CategoryTransport:            {"transport", "mobility", "vehicle", "road", "rail", "aviation"},
	CategoryAgriculture:          {"agriculture", "farming", "food", "rural", "crop", "livestock"},
	CategoryResearchInnovation:   {"research", "innovation", "technology", "development", "science"},
	CategoryPublicAdministration: {"administration", "governance", "public service", "regulation"},
	CategoryInternationalRel:     {"international", "trade", "development", "cooperation", "global"},
}
