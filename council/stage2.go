package council

import (
	"context"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strconv"

	"github.com/euria/council-engine/modelclient"
)

// seededPermutation produces a deterministic permutation of n indices,
// seeded by (assessmentID, iteration) per spec §4.7: "a pseudorandom
// sequence seeded by (assessment_id, i) (determinism for tests)". This
// replaces council.py's unseeded random.shuffle — see the open-question
// resolution in SPEC_FULL.md.
func seededPermutation(assessmentID string, iteration, n int) []int {
	h := fnv.New64a()
	h.Write([]byte(assessmentID))
	seed := int64(h.Sum64()) ^ int64(iteration)
	rng := rand.New(rand.NewSource(seed))

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	return perm
}

var rankingLineRe = regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
var responseLabelRe = regexp.MustCompile(`Response [A-Z]`)

// parseRanking implements spec §4.7's ranking parse: find the text after
// "FINAL RANKING:", extract numbered "N. Response X" lines in order; fall
// back to any "Response X" occurrences if no numbered lines are found;
// return an error if nothing matches at all (council.py instead silently
// returns an empty list, which this package treats as a parse failure so
// the iteration can be dropped per spec §4.7).
func parseRanking(text string) ([]string, error) {
	section := text
	if idx := indexOfFinalRanking(text); idx >= 0 {
		section = text[idx+len("FINAL RANKING:"):]
	}

	numbered := rankingLineRe.FindAllString(section, -1)
	var labels []string
	if len(numbered) > 0 {
		for _, line := range numbered {
			labels = append(labels, responseLabelRe.FindString(line))
		}
	} else {
		labels = responseLabelRe.FindAllString(section, -1)
	}
	if len(labels) == 0 {
		return nil, errParseFailed
	}
	return labels, nil
}

func indexOfFinalRanking(text string) int {
	const marker = "FINAL RANKING:"
	for i := 0; i+len(marker) <= len(text); i++ {
		if text[i:i+len(marker)] == marker {
			return i
		}
	}
	return -1
}

// Stage2 implements spec §4.7's "Bootstrap peer ranking": K iterations,
// each with a rotating criterion and a deterministically permuted
// response order, fanned out in parallel across the council models.
func (e *Engine) Stage2(ctx context.Context, assessmentID, proposal string, stage1 []Stage1Result) (map[string][]RankingIteration, []string) {
	n := len(stage1)
	textByLabel := make(map[string]string, n)
	labels := make([]string, n)
	for i, r := range stage1 {
		textByLabel[r.Label] = r.Text
		labels[i] = r.Label
	}

	iterationsByEvaluator := make(map[string][]RankingIteration)
	var errs []string

	numIterations := e.Config.BootstrapIterations
	if !e.Config.EnableBootstrap {
		numIterations = 1
	}

	for it := 0; it < numIterations; it++ {
		criterion := e.Config.Criteria[it%len(e.Config.Criteria)]

		order := labels
		if e.Config.EnableBootstrap {
			perm := seededPermutation(assessmentID, it, n)
			order = make([]string, n)
			for i, p := range perm {
				order[i] = labels[p]
			}
		}
		// Position i is shown under label labels[i] with the text of order[i].
		shownText := make(map[string]string, n)
		shuffledToOriginal := make(map[string]string, n)
		for i, original := range order {
			shownText[labels[i]] = textByLabel[original]
			shuffledToOriginal[labels[i]] = original
		}

		prompt := buildRankingPrompt(proposal, criterion, labels, shownText)
		messages := []modelclient.Message{{Role: modelclient.RoleUser, Content: prompt}}
		results := e.Client.QueryParallel(ctx, e.Config.CouncilModels, messages, modelclient.Params{Temperature: 0.3, Timeout: stage1Timeout})

		for _, modelID := range e.Config.CouncilModels {
			res := results[modelID]
			if res.Err != nil {
				errs = append(errs, "stage2 iteration "+strconv.Itoa(it)+" model "+modelID+": "+res.Err.Error())
				iterationsByEvaluator[modelID] = append(iterationsByEvaluator[modelID], RankingIteration{Iteration: it, Criterion: criterion, ParseOK: false})
				continue
			}
			parsed, err := parseRanking(res.Response.Content)
			if err != nil {
				errs = append(errs, "stage2 iteration "+strconv.Itoa(it)+" model "+modelID+": "+err.Error())
				iterationsByEvaluator[modelID] = append(iterationsByEvaluator[modelID], RankingIteration{Iteration: it, Criterion: criterion, ParseOK: false})
				continue
			}
			// Map shuffled labels back to original enumeration labels.
			original := make([]string, 0, len(parsed))
			for _, shuffled := range parsed {
				if orig, ok := shuffledToOriginal[shuffled]; ok {
					original = append(original, orig)
				}
			}
			iterationsByEvaluator[modelID] = append(iterationsByEvaluator[modelID], RankingIteration{
				Iteration: it, Criterion: criterion, Ranking: original, ParseOK: true,
			})
		}
	}

	return iterationsByEvaluator, errs
}
