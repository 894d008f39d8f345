// Package council implements C7, the three-stage deliberation protocol:
// first opinions, bootstrap peer ranking, and chairman synthesis.
// Grounded on original_source/backend/council.py's
// stage1_collect_responses/stage2_collect_rankings/stage3_synthesize_final
// shape, generalized from its hardcoded OpenRouter/direct-API calls onto
// the modelclient.Client uniform gateway built for C6.
package council

import (
	"context"
	"errors"
	"fmt"

	"github.com/euria/council-engine/modelclient"
	"github.com/euria/council-engine/models"
)

// Config mirrors council_config from spec §4.7/§6.
type Config struct {
	CouncilModels       []string
	ChairmanModel       string
	BootstrapIterations int
	EnableBootstrap     bool
	Criteria            []string
	Aggregation         models.AggregationMethod
	ChairmanFallback    bool
}

// AggregationMethod aliases are kept for readability within this package;
// models.AggregationMethod is the shared wire representation.
const (
	AggregationBorda       = models.AggregationBorda
	AggregationPositionAvg = models.AggregationPositionAvg
	AggregationConsensus   = models.AggregationConsensus
)

// DefaultCriteria is the rotating evaluation-criterion list council.py
// cycles through across bootstrap iterations.
var DefaultCriteria = []string{"accuracy", "completeness", "clarity", "utility", "balanced"}

var criterionDescriptions = map[string]string{
	"accuracy":     "factual accuracy and correct use of the retrieved context",
	"completeness": "coverage of the required impact themes and structure",
	"clarity":      "clarity and readability of the analysis",
	"utility":      "practical usefulness of the assessment to a policy reviewer",
	"balanced":     "overall balance across accuracy, completeness, clarity, and utility",
}

// ErrKind distinguishes council-level failures from ordinary model errors.
type ErrKind int

const (
	ErrInsufficientResponses ErrKind = iota
	ErrInvalidConfig
)

// Error is a council-level failure (spec §4.7, §7).
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Stage1Result is one council model's first opinion.
type Stage1Result struct {
	ModelID string
	Label   string // "Response A", "Response B", ...
	Text    string
}

// Run is the in-memory working state of a single council deliberation,
// mirroring models.CouncilRun but kept transport-agnostic so the workflow
// package decides when to persist it.
type Run struct {
	Stage1           []Stage1Result
	LabelToModel     map[string]string
	Stage2           map[string][]RankingIteration // evaluator model -> iterations
	Stage2Aggregated map[string]ConsensusRanking   // evaluator model -> consensus
	Stage3Text       string
	ChairmanFallback bool
	Errors           []string
}

// RankingIteration is one Stage-2 bootstrap iteration's parsed ranking.
type RankingIteration struct {
	Iteration int
	Criterion string
	Ranking   []string // original response labels, best first
	ParseOK   bool
}

// ConsensusRanking is the aggregated Stage-2 output for one evaluator.
type ConsensusRanking struct {
	EvaluatorModel  string
	Ranking         []string
	Scores          map[string]float64
	ValidIterations int
	Omitted         bool
	OmitReason      string
}

// Engine runs the three-stage protocol against a modelclient.Client.
type Engine struct {
	Client *modelclient.Client
	Config Config
}

func New(client *modelclient.Client, cfg Config) (*Engine, error) {
	for _, m := range cfg.CouncilModels {
		if m == cfg.ChairmanModel {
			return nil, &Error{Kind: ErrInvalidConfig, Msg: fmt.Sprintf("chairman model %q must not appear in council_models", m)}
		}
	}
	if cfg.BootstrapIterations <= 0 {
		cfg.BootstrapIterations = 1
	}
	if len(cfg.Criteria) == 0 {
		cfg.Criteria = DefaultCriteria
	}
	if cfg.Aggregation == "" {
		cfg.Aggregation = AggregationBorda
	}
	return &Engine{Client: client, Config: cfg}, nil
}

// Deliberate runs Stage 1, Stage 2, and Stage 3 in sequence, applying the
// structured-concurrency and minimum-response invariants of spec §4.7.
func (e *Engine) Deliberate(ctx context.Context, assessmentID string, proposal, synthesizedContext string) (*Run, error) {
	run := &Run{
		Stage2:           make(map[string][]RankingIteration),
		Stage2Aggregated: make(map[string]ConsensusRanking),
	}

	stage1, err := e.Stage1(ctx, proposal, synthesizedContext)
	if err != nil {
		return nil, err
	}
	run.Stage1 = stage1
	run.LabelToModel = make(map[string]string, len(stage1))
	for _, r := range stage1 {
		run.LabelToModel[r.Label] = r.ModelID
	}

	if len(stage1) > 1 {
		iterations, errs := e.Stage2(ctx, assessmentID, proposal, stage1)
		run.Stage2 = iterations
		run.Errors = append(run.Errors, errs...)
		run.Stage2Aggregated = aggregate(iterations, len(stage1), e.Config.Aggregation, run.Errors)
	}

	text, fallback, err := e.Stage3(ctx, proposal, synthesizedContext, run)
	if err != nil {
		return nil, err
	}
	run.Stage3Text = text
	run.ChairmanFallback = fallback
	return run, nil
}

// Stage1 implements spec §4.7's "First opinions": a parallel fan-out with
// a tolerance for up to all-but-two permanent failures (a single-model
// council needs its one response). Each model gets
// its own role-specialized prompt (council.py's stage1_collect_responses
// specialized_roles table: evidence-synthesis, impact-assessment,
// problem-definition, generalist) rather than one shared prompt, so the
// council's deliberation benefits from genuinely different lenses instead
// of the same question asked three times.
func (e *Engine) Stage1(ctx context.Context, proposal, context_ string) ([]Stage1Result, error) {
	type call struct {
		modelID string
		text    string
		err     error
	}
	out := make(chan call, len(e.Config.CouncilModels))
	for _, modelID := range e.Config.CouncilModels {
		go func(modelID string) {
			prompt := buildStage1Prompt(modelID, proposal, context_)
			messages := []modelclient.Message{{Role: modelclient.RoleUser, Content: prompt}}
			resp, err := e.Client.Query(ctx, modelID, messages, modelclient.Params{Temperature: 0.7, Timeout: stage1Timeout})
			if err != nil {
				out <- call{modelID: modelID, err: err}
				return
			}
			out <- call{modelID: modelID, text: resp.Content}
		}(modelID)
	}

	results := make(map[string]call, len(e.Config.CouncilModels))
	for i := 0; i < len(e.Config.CouncilModels); i++ {
		c := <-out
		results[c.modelID] = c
	}

	var ok []Stage1Result
	for _, modelID := range e.Config.CouncilModels {
		res := results[modelID]
		if res.err != nil {
			continue
		}
		ok = append(ok, Stage1Result{ModelID: modelID, Text: res.text})
	}
	need := 2
	if len(e.Config.CouncilModels) < need {
		need = len(e.Config.CouncilModels)
	}
	if len(ok) == 0 || len(ok) < need {
		return nil, &Error{Kind: ErrInsufficientResponses, Msg: fmt.Sprintf("only %d of %d council models returned a first opinion, need at least %d", len(ok), len(e.Config.CouncilModels), need)}
	}
	for i := range ok {
		ok[i].Label = responseLabel(i)
	}
	return ok, nil
}

// Stage3 implements spec §4.7's "Chairman synthesis": a single call, with
// an optional fallback to the highest-Borda Stage-1 response when the
// chairman call fails permanently and ChairmanFallback is enabled.
func (e *Engine) Stage3(ctx context.Context, proposal, synthesizedContext string, run *Run) (text string, fallback bool, err error) {
	prompt := buildStage3Prompt(proposal, synthesizedContext, run)
	messages := []modelclient.Message{{Role: modelclient.RoleUser, Content: prompt}}

	resp, callErr := e.Client.Query(ctx, e.Config.ChairmanModel, messages, modelclient.Params{Temperature: 0.4, Timeout: stage3Timeout})
	if callErr == nil {
		return resp.Content, false, nil
	}
	if !e.Config.ChairmanFallback {
		return "", false, callErr
	}

	best := highestRankedStage1(run)
	if best == "" {
		return "", false, fmt.Errorf("chairman call failed and no stage-1 response available for fallback: %w", callErr)
	}
	return best, true, nil
}

// highestRankedStage1 picks the Stage-1 response with the best aggregate
// Borda score, falling back to enumeration order when Stage 2 never ran
// (single-model council, or every ranking failed to parse). The tally is
// computed directly from the raw Stage-2 iterations rather than from
// run.Stage2Aggregated, since Scores there is aggregation-method-specific
// (position_avg ranks lower-is-better and consensus uses a different
// scale) and the fallback must always pick the highest-Borda response
// regardless of the configured aggregation method.
func highestRankedStage1(run *Run) string {
	scores := combinedBordaScores(run.Stage2, len(run.Stage1))
	if len(scores) > 0 {
		bestLabel := ""
		bestScore := -1.0
		for _, r := range run.Stage1 {
			s := scores[r.Label]
			if s > bestScore {
				bestScore = s
				bestLabel = r.Label
			}
		}
		for _, r := range run.Stage1 {
			if r.Label == bestLabel {
				return r.Text
			}
		}
	}
	if len(run.Stage1) > 0 {
		return run.Stage1[0].Text
	}
	return ""
}

// combinedBordaScores sums a fresh Borda tally (position p gets n-p
// points) across every evaluator's parseable Stage-2 iterations, used
// only to pick a fallback response — independent of whichever
// aggregation method is configured for the reported consensus.
func combinedBordaScores(iterations map[string][]RankingIteration, numResponses int) map[string]float64 {
	totals := make(map[string]float64)
	for _, iters := range iterations {
		var valid []RankingIteration
		for _, it := range iters {
			if it.ParseOK {
				valid = append(valid, it)
			}
		}
		for label, score := range bordaScores(valid, numResponses) {
			totals[label] += score
		}
	}
	return totals
}

// responseLabel returns "Response A", "Response B", ... for index i,
// matching council.py's chr(65 + i) scheme.
func responseLabel(i int) string {
	return fmt.Sprintf("Response %c", rune('A'+i))
}

var errParseFailed = errors.New("council: could not parse a ranking from the model's response")
