package extract

import (
	"strings"
	"testing"

	"github.com/euria/council-engine/models"
)

func TestExtractEmptyTextReturnsSkeleton(t *testing.T) {
	result := Extract("")
	if len(result.Themes) != models.ThemeCount {
		t.Fatalf("expected %d theme entries, got %d", models.ThemeCount, len(result.Themes))
	}
	for _, theme := range result.Themes {
		if theme.Impact != models.ImpactUnknown || theme.Explanation != "missing in synthesis" {
			t.Fatalf("expected every theme to default to unknown/missing, got %+v", theme)
		}
	}
	for _, name := range models.SectionNames {
		if result.Sections[name] != "" {
			t.Fatalf("expected section %q to be empty, got %q", name, result.Sections[name])
		}
	}
}

func TestExtractSectionsInOrder(t *testing.T) {
	text := `Background and Problem Definition
This proposal addresses a regulatory gap.

Executive Summary
A short summary of the assessment.

Proposal Overview
The proposal introduces new reporting duties.

21 Belgian Impact Themes Assessment
[4] Health: positive impact. Improves access to care. [SWD(2022) 167 final]
[12] Energy: negative impact. Raises compliance costs.

Overall Assessment Summary
On balance, the proposal is beneficial.`

	result := Extract(text)
	if !strings.Contains(result.Sections[models.SectionBackground], "regulatory gap") {
		t.Fatalf("unexpected background section: %q", result.Sections[models.SectionBackground])
	}
	if !strings.Contains(result.Sections[models.SectionExecutiveSummary], "short summary") {
		t.Fatalf("unexpected executive summary: %q", result.Sections[models.SectionExecutiveSummary])
	}
	if !strings.Contains(result.Sections[models.SectionOverallSummary], "beneficial") {
		t.Fatalf("unexpected overall summary: %q", result.Sections[models.SectionOverallSummary])
	}

	health := result.Themes[3]
	if health.Impact != models.ImpactPositive {
		t.Fatalf("expected theme 4 (Health) to be positive, got %v", health.Impact)
	}
	if len(health.Citations) != 1 || health.Citations[0] != "SWD(2022) 167 final" {
		t.Fatalf("expected theme 4 to cite SWD(2022) 167 final, got %v", health.Citations)
	}

	energy := result.Themes[11]
	if energy.Impact != models.ImpactNegative {
		t.Fatalf("expected theme 12 (Energy) to be negative, got %v", energy.Impact)
	}

	missing := result.Themes[0]
	if missing.Impact != models.ImpactUnknown || missing.Explanation != "missing in synthesis" {
		t.Fatalf("expected theme 1 to remain unknown/missing, got %+v", missing)
	}
}

func TestExtractDoesNotTreatThemeMarkersAsCitations(t *testing.T) {
	text := "21 Belgian Impact Themes Assessment\n[7] Economic Development: no impact. See [Theme 7] above for context."
	result := Extract(text)
	for _, c := range result.Citations {
		if c == "Theme 7" || c == "7" {
			t.Fatalf("expected theme markers to be filtered out of citations, got %v", result.Citations)
		}
	}
}
