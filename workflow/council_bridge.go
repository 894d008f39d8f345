package workflow

import (
	"sort"

	"github.com/euria/council-engine/council"
	"github.com/euria/council-engine/models"
)

// toModelsBootstrapConfig copies a council.Config's tunables into the
// wire-persisted models.BootstrapConfig shape recorded on every CouncilRun.
func toModelsBootstrapConfig(cfg council.Config) models.BootstrapConfig {
	return models.BootstrapConfig{
		CouncilModels:       cfg.CouncilModels,
		ChairmanModel:       cfg.ChairmanModel,
		BootstrapIterations: cfg.BootstrapIterations,
		EnableBootstrap:     cfg.EnableBootstrap,
		Criteria:            cfg.Criteria,
		Aggregation:         cfg.Aggregation,
		ChairmanFallback:    cfg.ChairmanFallback,
	}
}

// recordStage1 writes a completed Stage-1 fan-out into the persisted run.
func recordStage1(run *models.CouncilRun, results []council.Stage1Result) {
	for _, r := range results {
		run.Stage1[r.ModelID] = r.Text
		run.Stage1Labels[r.ModelID] = r.Label
	}
}

// stage1ResultsFromRun reconstructs the ordered []council.Stage1Result the
// council engine's Stage2/Stage3 take, from the persisted (model -> text,
// model -> label) maps, so that a resumed assessment never needs to
// re-run a completed Stage 1.
func stage1ResultsFromRun(run *models.CouncilRun) []council.Stage1Result {
	results := make([]council.Stage1Result, 0, len(run.Stage1))
	for modelID, text := range run.Stage1 {
		results = append(results, council.Stage1Result{
			ModelID: modelID,
			Label:   run.Stage1Labels[modelID],
			Text:    text,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Label < results[j].Label })
	return results
}

// recordStage2 writes a completed Stage-2 bootstrap pass into the
// persisted run, converting from the council package's working types to
// the wire-persisted models types (field-for-field identical, kept as
// separate types because council.Run is transport-agnostic in-memory
// state and models.CouncilRun is the persisted record).
func recordStage2(run *models.CouncilRun, iterations map[string][]council.RankingIteration, aggregated map[string]council.ConsensusRanking) {
	for evaluator, iters := range iterations {
		converted := make([]models.RankingIteration, len(iters))
		for i, it := range iters {
			converted[i] = models.RankingIteration{
				Iteration: it.Iteration,
				Criterion: it.Criterion,
				Ranking:   it.Ranking,
				ParseOK:   it.ParseOK,
			}
		}
		run.Stage2[evaluator] = converted
	}
	for evaluator, c := range aggregated {
		run.Stage2Aggregated[evaluator] = models.ConsensusRanking{
			EvaluatorModel:  c.EvaluatorModel,
			Ranking:         c.Ranking,
			Scores:          c.Scores,
			ValidIterations: c.ValidIterations,
			Omitted:         c.Omitted,
			OmitReason:      c.OmitReason,
		}
	}
}

// reconstructCouncilRun rebuilds the in-memory council.Run the engine's
// Stage3 needs (Stage1 results, label/model mapping, aggregated Stage-2
// consensus) from the persisted models.CouncilRun, so Stage 3 — including
// a revision cycle's re-synthesis — never needs Stage 1/2 to be re-run.
func reconstructCouncilRun(run *models.CouncilRun) *council.Run {
	stage1 := stage1ResultsFromRun(run)
	labelToModel := make(map[string]string, len(stage1))
	for _, r := range stage1 {
		labelToModel[r.Label] = r.ModelID
	}

	aggregated := make(map[string]council.ConsensusRanking, len(run.Stage2Aggregated))
	for evaluator, c := range run.Stage2Aggregated {
		aggregated[evaluator] = council.ConsensusRanking{
			EvaluatorModel:  c.EvaluatorModel,
			Ranking:         c.Ranking,
			Scores:          c.Scores,
			ValidIterations: c.ValidIterations,
			Omitted:         c.Omitted,
			OmitReason:      c.OmitReason,
		}
	}

	iterations := make(map[string][]council.RankingIteration, len(run.Stage2))
	for evaluator, iters := range run.Stage2 {
		converted := make([]council.RankingIteration, len(iters))
		for i, it := range iters {
			converted[i] = council.RankingIteration{
				Iteration: it.Iteration,
				Criterion: it.Criterion,
				Ranking:   it.Ranking,
				ParseOK:   it.ParseOK,
			}
		}
		iterations[evaluator] = converted
	}

	return &council.Run{
		Stage1:           stage1,
		LabelToModel:     labelToModel,
		Stage2:           iterations,
		Stage2Aggregated: aggregated,
		Errors:           run.Errors,
	}
}

// cloneCouncilRunForRevision implements spec §3's CouncilRun lifecycle
// rule: a revision cycle never mutates a run after stage3_text is
// present, it creates a new run appended to CouncilHistory. Stage 1 and
// Stage 2 are not re-executed, so their outputs carry over unchanged;
// only stage3_text/stage3_structured are cleared for the new chairman
// pass, and the reviewer's feedback is recorded so it can be folded into
// the next chairman prompt.
func cloneCouncilRunForRevision(prev *models.CouncilRun, feedback string) *models.CouncilRun {
	next := models.NewCouncilRun(prev.BootstrapConfig)
	for modelID, text := range prev.Stage1 {
		next.Stage1[modelID] = text
	}
	for modelID, label := range prev.Stage1Labels {
		next.Stage1Labels[modelID] = label
	}
	for evaluator, iters := range prev.Stage2 {
		next.Stage2[evaluator] = iters
	}
	for evaluator, c := range prev.Stage2Aggregated {
		next.Stage2Aggregated[evaluator] = c
	}
	next.RevisionFeedback = feedback
	return next
}
