package council

import (
	"math"
	"sort"

	"github.com/euria/council-engine/models"
)

// Aggregate exposes the Stage-2 aggregation step on its own so callers
// driving the three stages independently (the workflow engine, so it can
// persist a transition between Stage2Running and Stage2Complete) don't
// need to go through Deliberate's all-in-one convenience wrapper.
func (e *Engine) Aggregate(iterations map[string][]RankingIteration, numResponses int) map[string]ConsensusRanking {
	return aggregate(iterations, numResponses, e.Config.Aggregation, nil)
}

// aggregate implements spec §4.7's per-evaluator Stage-2 aggregation:
// Borda count, position average, or consensus score, each with the same
// three-level tie-break (first-place count, then fewest worst-ranks, then
// label order). Evaluators with fewer than ceil(K/2) valid iterations are
// omitted per the spec's minimum-validity rule.
func aggregate(iterations map[string][]RankingIteration, numResponses int, method models.AggregationMethod, _ []string) map[string]ConsensusRanking {
	out := make(map[string]ConsensusRanking, len(iterations))
	for evaluator, iters := range iterations {
		var valid []RankingIteration
		for _, it := range iters {
			if it.ParseOK {
				valid = append(valid, it)
			}
		}
		minValid := (len(iters) + 1) / 2 // ceil(K/2)
		if len(valid) < minValid {
			out[evaluator] = ConsensusRanking{
				EvaluatorModel:  evaluator,
				ValidIterations: len(valid),
				Omitted:         true,
				OmitReason:      "fewer than ceil(K/2) iterations produced a parseable ranking",
			}
			continue
		}

		scores := scoreFunc(method)(valid, numResponses)
		ranking := rankByScore(scores, valid, method)
		out[evaluator] = ConsensusRanking{
			EvaluatorModel:  evaluator,
			Ranking:         ranking,
			Scores:          scores,
			ValidIterations: len(valid),
		}
	}
	return out
}

func scoreFunc(method models.AggregationMethod) func([]RankingIteration, int) map[string]float64 {
	switch method {
	case AggregationPositionAvg:
		return positionAverageScores
	case AggregationConsensus:
		return consensusScores
	default:
		return bordaScores
	}
}

// bordaScores implements spec §4.7's Borda count: position p (0-indexed)
// receives N-p points, summed across valid iterations.
func bordaScores(iterations []RankingIteration, n int) map[string]float64 {
	scores := make(map[string]float64)
	for _, it := range iterations {
		for p, label := range it.Ranking {
			scores[label] += float64(n - p)
		}
	}
	return scores
}

// positionAverageScores implements spec §4.7's position average: mean
// 0-indexed position across iterations; lower is better.
func positionAverageScores(iterations []RankingIteration, _ int) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, it := range iterations {
		for p, label := range it.Ranking {
			sums[label] += float64(p)
			counts[label]++
		}
	}
	out := make(map[string]float64, len(sums))
	for label, sum := range sums {
		out[label] = roundTo2(sum / float64(counts[label]))
	}
	return out
}

// consensusScores implements spec §4.7's consensus score: sum of
// (N-p)^2 across iterations, rewarding consistent high placements.
func consensusScores(iterations []RankingIteration, n int) map[string]float64 {
	scores := make(map[string]float64)
	for _, it := range iterations {
		for p, label := range it.Ranking {
			points := float64(n - p)
			scores[label] += points * points
		}
	}
	return scores
}

// rankByScore sorts labels by their aggregate score (descending for
// Borda/consensus, ascending for position average) and applies the
// spec's tie-break chain: first-place frequency, then fewest worst-ranks,
// then label order.
func rankByScore(scores map[string]float64, iterations []RankingIteration, method models.AggregationMethod) []string {
	firstPlaceCount := make(map[string]int)
	worstRankCount := make(map[string]int)
	for _, it := range iterations {
		if len(it.Ranking) == 0 {
			continue
		}
		firstPlaceCount[it.Ranking[0]]++
		worstRankCount[it.Ranking[len(it.Ranking)-1]]++
	}

	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}

	ascending := method == AggregationPositionAvg
	sort.Slice(labels, func(i, j int) bool {
		a, b := labels[i], labels[j]
		if scores[a] != scores[b] {
			if ascending {
				return scores[a] < scores[b]
			}
			return scores[a] > scores[b]
		}
		if firstPlaceCount[a] != firstPlaceCount[b] {
			return firstPlaceCount[a] > firstPlaceCount[b]
		}
		if worstRankCount[a] != worstRankCount[b] {
			return worstRankCount[a] < worstRankCount[b]
		}
		return a < b
	})
	return labels
}

// roundTo2 matches council.py's round(avg_rank, 2). positionAverageScores
// stores the rounded averages, so position-average ranking compares scores
// at two-decimal precision and averages that differ only beyond that go to
// the tie-breaks.
func roundTo2(f float64) float64 {
	return math.Round(f*100) / 100
}
