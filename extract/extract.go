// Package extract implements C8: parsing a chairman's synthesis text
// into the fixed section map and 21-entry Belgian impact theme list.
// Grounded on original_source/backend/impact_assessment_generator.py's
// _extract_sections (numbered-heading regex walk, start/end slicing
// against the next heading) and
// original_source/backend/services/15_extract_sections.py's
// graceful-degradation-to-empty-sections shape, generalized from the
// source's free-form EU_IA_SECTIONS list onto spec §4.8's closed
// five-section table and 21-theme structure.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/euria/council-engine/models"
)

// sectionHeadingPatterns gives each closed-set section name a heading
// regex matching its title text case-insensitively (the themes heading
// with or without the leading "21"/"Belgian"); a bare numeral or ordinal
// without the title text does not match.
var sectionHeadingPatterns = map[models.SectionName]*regexp.Regexp{
	models.SectionBackground:       regexp.MustCompile(`(?i)(background\s*(?:and|/)?\s*problem definition|problem definition)`),
	models.SectionExecutiveSummary: regexp.MustCompile(`(?i)executive summary`),
	models.SectionProposalOverview: regexp.MustCompile(`(?i)proposal overview`),
	models.SectionThemes:           regexp.MustCompile(`(?i)(21\s*(?:belgian\s*)?impact themes? assessment|impact themes? assessment)`),
	models.SectionOverallSummary:   regexp.MustCompile(`(?i)overall assessment summary`),
}

// sectionOrder fixes the expected reading order, used to bound each
// section's extracted span at the start of the next section that is
// actually found.
var sectionOrder = []models.SectionName{
	models.SectionBackground,
	models.SectionExecutiveSummary,
	models.SectionProposalOverview,
	models.SectionThemes,
	models.SectionOverallSummary,
}

// themeMarkerRe finds "[N]"-style theme markers, e.g. "[14]" or
// "[Theme 14]", within the themes section.
var themeMarkerRe = regexp.MustCompile(`(?i)\[\s*(?:theme\s*)?(\d{1,2})\s*\]`)

var impactPhrases = []struct {
	re  *regexp.Regexp
	tag models.ImpactTag
}{
	{regexp.MustCompile(`(?i)\bpositive impact\b`), models.ImpactPositive},
	{regexp.MustCompile(`(?i)\bnegative impact\b`), models.ImpactNegative},
	{regexp.MustCompile(`(?i)\bno impact\b`), models.ImpactNone},
}

// citationRe finds bracketed references back to chunk ids or document
// names emitted during context synthesis, e.g. "[SWD(2022) 167 final]"
// or "[chunk:3fae...]".
var citationRe = regexp.MustCompile(`\[([A-Za-z0-9][^\[\]]{2,80})\]`)

// Extract implements spec §4.8's parse algorithm end to end. It never
// errors: missing sections yield an empty string, missing themes yield
// impact=unknown with explanation "missing in synthesis", and a chairman
// response with no recognizable structure at all still returns a valid
// StructuredAssessment skeleton.
func Extract(chairmanText string) *models.StructuredAssessment {
	result := models.NewStructuredAssessment()
	if strings.TrimSpace(chairmanText) == "" {
		return result
	}

	sections := extractSections(chairmanText)
	for name, text := range sections {
		result.Sections[name] = text
	}

	if themesText, ok := sections[models.SectionThemes]; ok && themesText != "" {
		result.Themes = extractThemes(themesText)
	}

	result.Citations = extractCitations(chairmanText)
	return result
}

// extractSections walks the fixed heading order, locating each section's
// start via its regex and bounding its end at the next section's start
// (or end of text for the last section found). Mirrors
// _extract_sections's start/end slicing but over the closed set of
// headings instead of EU_IA_SECTIONS's free list.
func extractSections(content string) map[models.SectionName]string {
	type span struct {
		name  models.SectionName
		start int
		end   int // exclusive, of the heading match itself
	}

	var found []span
	for _, name := range sectionOrder {
		re := sectionHeadingPatterns[name]
		loc := re.FindStringIndex(content)
		if loc == nil {
			continue
		}
		found = append(found, span{name: name, start: loc[0], end: loc[1]})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	out := make(map[models.SectionName]string, len(sectionOrder))
	for _, name := range sectionOrder {
		out[name] = ""
	}

	for i, s := range found {
		bodyStart := s.end
		bodyEnd := len(content)
		if i+1 < len(found) {
			bodyEnd = found[i+1].start
		}
		if bodyStart < bodyEnd {
			out[s.name] = strings.TrimSpace(content[bodyStart:bodyEnd])
		}
	}
	return out
}

// extractThemes splits the themes section by [N] markers and fills in
// each of the 21 entries; themes absent from the text stay
// impact=unknown per spec §4.8's output invariants.
func extractThemes(themesText string) []models.ThemeEntry {
	themes := make([]models.ThemeEntry, models.ThemeCount)
	for i := range themes {
		themes[i] = models.ThemeEntry{
			Number:      i + 1,
			Title:       models.ThemeTitles[i+1],
			Impact:      models.ImpactUnknown,
			Explanation: "missing in synthesis",
		}
	}

	markers := themeMarkerRe.FindAllStringSubmatchIndex(themesText, -1)
	for i, m := range markers {
		numStr := themesText[m[2]:m[3]]
		num, err := strconv.Atoi(numStr)
		if err != nil || num < 1 || num > models.ThemeCount {
			continue
		}
		bodyStart := m[1]
		bodyEnd := len(themesText)
		if i+1 < len(markers) {
			bodyEnd = markers[i+1][0]
		}
		body := strings.TrimSpace(themesText[bodyStart:bodyEnd])
		if body == "" {
			continue
		}

		idx := num - 1
		themes[idx].Impact = detectImpact(body)
		themes[idx].Explanation = body
		themes[idx].Citations = extractCitations(body)
	}
	return themes
}

// detectImpact matches normalized impact phrases near the start of a
// theme's body (spec §4.8 step 2), falling back to unknown when none of
// the three closed phrases appear.
func detectImpact(body string) models.ImpactTag {
	window := body
	if len(window) > 200 {
		window = window[:200]
	}
	for _, p := range impactPhrases {
		if p.re.MatchString(window) {
			return p.tag
		}
	}
	return models.ImpactUnknown
}

// extractCitations scans for bracketed references, deduplicating by
// first occurrence (spec §4.8 step 4).
func extractCitations(text string) []string {
	matches := citationRe.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		ref := strings.TrimSpace(m[1])
		if ref == "" || seen[ref] {
			continue
		}
		// A bare theme marker like "14" or "Theme 14" is not a citation.
		if themeMarkerRe.MatchString("[" + ref + "]") {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}
