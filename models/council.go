package models

import (
	"time"

	"github.com/google/uuid"
)

// AggregationMethod selects how Stage-2 bootstrap rankings are combined
// into a per-evaluator consensus ranking (spec §4.7).
type AggregationMethod string

const (
	AggregationBorda       AggregationMethod = "borda"
	AggregationPositionAvg AggregationMethod = "position_avg"
	AggregationConsensus   AggregationMethod = "consensus"
)

// BootstrapConfig mirrors the council_config fields of spec §4.7/§6.
type BootstrapConfig struct {
	CouncilModels       []string          `json:"council_models"`
	ChairmanModel       string            `json:"chairman_model"`
	BootstrapIterations int               `json:"bootstrap_iterations"`
	EnableBootstrap     bool              `json:"enable_bootstrap"`
	Criteria            []string          `json:"criteria"`
	Aggregation         AggregationMethod `json:"aggregation"`
	ChairmanFallback    bool              `json:"chairman_fallback"`
}

// RankingIteration is one Stage-2 bootstrap iteration's parsed ranking for
// a single evaluator model.
type RankingIteration struct {
	Iteration int      `json:"iteration"`
	Criterion string   `json:"criterion"`
	Ranking   []string `json:"ranking"` // original response labels, best first
	ParseOK   bool     `json:"parse_ok"`
}

// ConsensusRanking is the aggregated Stage-2 output for one evaluator.
type ConsensusRanking struct {
	EvaluatorModel  string             `json:"evaluator_model"`
	Ranking         []string           `json:"ranking"` // response labels, best first
	Scores          map[string]float64 `json:"scores"`
	ValidIterations int                `json:"valid_iterations"`
	Omitted         bool               `json:"omitted"`
	OmitReason      string             `json:"omit_reason,omitempty"`
}

// CouncilRun is the per-assessment council record (spec §3).
type CouncilRun struct {
	ID               uuid.UUID                     `json:"id"`
	Stage1           map[string]string             `json:"stage1"`        // model id -> opinion text
	Stage1Labels     map[string]string             `json:"stage1_labels"` // model id -> "Response A" etc
	Stage2           map[string][]RankingIteration `json:"stage2"`        // evaluator model -> iterations
	Stage2Aggregated map[string]ConsensusRanking   `json:"stage2_aggregated"`
	Stage3Text       string                        `json:"stage3_text"`
	Stage3Structured *StructuredAssessment         `json:"stage3_structured,omitempty"`
	ChairmanFallback bool                          `json:"chairman_fallback"`
	BootstrapConfig  BootstrapConfig               `json:"bootstrap_config"`
	RetryCount       int                           `json:"retry_count"`
	Errors           []string                      `json:"errors"`
	CreatedAt        time.Time                     `json:"created_at"`
	RevisionFeedback string                        `json:"revision_feedback,omitempty"`
}

// NewCouncilRun creates an empty run ready to be populated stage by stage.
func NewCouncilRun(cfg BootstrapConfig) *CouncilRun {
	return &CouncilRun{
		ID:               uuid.New(),
		Stage1:           make(map[string]string),
		Stage1Labels:     make(map[string]string),
		Stage2:           make(map[string][]RankingIteration),
		Stage2Aggregated: make(map[string]ConsensusRanking),
		BootstrapConfig:  cfg,
		CreatedAt:        time.Now(),
	}
}
