package council

import (
	"fmt"
	"strings"
)

const (
	stage1Timeout = 60_000_000_000 // 60s, expressed in time.Duration nanoseconds to avoid importing time twice here
	stage3Timeout = 120_000_000_000
)

const contextExcerptLimit = 2000

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// stage1Role is one entry of the specialized-role table
// stage1_collect_responses assigns per model family.
type stage1Role struct {
	title string
	focus string
	ask   string
}

var stage1Roles = map[string]stage1Role{
	"evidence": {
		title: "Evidence Synthesis and Data Interpretation Specialist",
		focus: "Synthesizing evidence from retrieved documents\n- Proper citation of EU and Belgian RIA examples\n- Data-driven impact assessments",
		ask:   "Generate assessments with strong evidence-based reasoning and proper citations.",
	},
	"impact": {
		title: "Impact Assessment and Risk Analysis Specialist",
		focus: "Comprehensive 21 impact themes assessment\n- Risk identification and mitigation measures\n- Positive/negative/no impact determinations",
		ask:   "Generate detailed impact assessments for all 21 Belgian RIA themes.",
	},
	"problem": {
		title: "Problem Definition and Policy Analysis Specialist",
		focus: "Comprehensive problem definition and background\n- Policy context and regulatory gaps\n- Drawing insights from retrieved EU Impact Assessment documents",
		ask:   "Generate a detailed Background/Problem Definition section and overall assessment structure.",
	},
}

// roleForModel mirrors council.py's stage1_collect_responses model-family
// dispatch (gemini/google -> evidence, grok/x-ai -> impact, gpt/openai ->
// problem definition), with every other model id falling back to the
// generic first-opinion query rather than a forced role.
func roleForModel(modelID string) (stage1Role, bool) {
	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "gemini") || strings.Contains(lower, "google"):
		return stage1Roles["evidence"], true
	case strings.Contains(lower, "grok") || strings.Contains(lower, "x-ai"):
		return stage1Roles["impact"], true
	case strings.Contains(lower, "gpt") || strings.Contains(lower, "openai"):
		return stage1Roles["problem"], true
	default:
		return stage1Role{}, false
	}
}

// buildStage1Prompt mirrors council.py's stage1_collect_responses: the
// proposal plus a context excerpt, layered with a model-family-specific
// role instruction when one applies (SPEC_FULL.md's supplemented
// role-prompt table), falling back to the shared generic query otherwise.
func buildStage1Prompt(modelID, proposal, context string) string {
	role, specialized := roleForModel(modelID)
	if !specialized || context == "" {
		var b strings.Builder
		b.WriteString(proposal)
		if context != "" {
			b.WriteString("\n\nRetrieved Context:\n")
			b.WriteString(truncate(context, contextExcerptLimit))
		}
		b.WriteString("\n\nDraft a Belgian Regulatory Impact Assessment for this proposal, covering the 21 impact themes.")
		return b.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nYou are a %s. Focus on:\n- %s\n\nRetrieved Context:\n%s\n\n%s",
		proposal, role.title, role.focus, truncate(context, contextExcerptLimit), role.ask)
	return b.String()
}

// buildRankingPrompt mirrors council.py's _generate_evaluation_prompt:
// the proposal, the criterion's focus, the permuted/relabeled responses,
// and the strict FINAL RANKING: output format every evaluator must obey.
func buildRankingPrompt(proposal, criterion string, order []string, textByLabel map[string]string) string {
	var responses strings.Builder
	for i, label := range order {
		if i > 0 {
			responses.WriteString("\n\n")
		}
		fmt.Fprintf(&responses, "%s:\n%s", label, textByLabel[label])
	}

	return fmt.Sprintf(`You are evaluating Belgian RIA impact assessments for %s.

Original Query: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. Evaluate each response based on %s.
2. For each response, explain what it does well and what it does poorly.
3. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Now provide your evaluation and ranking focusing on %s:`, criterionFocus(criterion), proposal, responses.String(), criterionDescriptions[criterion], criterionFocus(criterion))
}

func criterionFocus(criterion string) string {
	if desc, ok := criterionDescriptions[criterion]; ok {
		return desc
	}
	return criterion
}

// buildStage3Prompt mirrors council.py's stage3_synthesize_final chairman
// prompt: the proposal, context, all Stage-1 responses, and the
// aggregated Stage-2 consensus rankings with bootstrap metadata.
func buildStage3Prompt(proposal, context string, run *Run) string {
	var stage1 strings.Builder
	for _, r := range run.Stage1 {
		fmt.Fprintf(&stage1, "Model: %s\nResponse: %s\n\n", r.ModelID, r.Text)
	}

	var stage2 strings.Builder
	for model, consensus := range run.Stage2Aggregated {
		if consensus.Omitted {
			fmt.Fprintf(&stage2, "Model: %s\nRanking: omitted (%s)\n\n", model, consensus.OmitReason)
			continue
		}
		fmt.Fprintf(&stage2, "Model: %s\nConsensus ranking: %s (valid iterations: %d)\n\n", model, strings.Join(consensus.Ranking, " > "), consensus.ValidIterations)
	}

	contextSection := ""
	if context != "" {
		contextSection = fmt.Sprintf("\n\nRETRIEVED CONTEXT (from EU and Belgian RIA documents):\n%s\n\nReference specific documents where appropriate and maintain consistency with the Belgian RIA structure.", truncate(context, 3000))
	}

	return fmt.Sprintf(`You are the Chairman of a council of AI models producing a Belgian Regulatory Impact Assessment. Multiple models have provided first opinions and ranked each other's responses.

Original Proposal: %s
%s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Peer Rankings (consensus per evaluator):
%s

Synthesize all of this into a single, comprehensive Belgian RIA assessment covering all 21 impact themes, each with a clear positive/negative/none determination, explanation, and citations to the retrieved context where relevant. Structure: Background/Problem Definition first, then Executive Summary, Proposal Overview, Impact Themes Assessment, Overall Assessment Summary, Recommendations.`, proposal, contextSection, stage1.String(), stage2.String())
}
