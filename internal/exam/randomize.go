package exam

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// Present builds the student-facing question set for one attempt. Questions are
// taken in orderIndex order; with shuffleQuestions the display order is permuted,
// with shuffleOptions each question's options are permuted independently.
// The input slice and its option slices are never modified, and answer keys and
// explanations are left out.
func Present(questions []model.Question, shuffleQuestions, shuffleOptions bool, rng *rand.Rand) []model.PresentedQuestion {
	order := make([]int, len(questions))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(questions[a].OrderIndex, questions[b].OrderIndex)
	})
	if shuffleQuestions {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	out := make([]model.PresentedQuestion, 0, len(questions))
	for pos, idx := range order {
		q := questions[idx]
		opts := slices.Clone(q.Options)
		if shuffleOptions && len(opts) > 1 {
			rng.Shuffle(len(opts), func(i, j int) {
				opts[i], opts[j] = opts[j], opts[i]
			})
		}
		out = append(out, model.PresentedQuestion{
			ID:         q.ID,
			Text:       q.Text,
			Type:       q.Type,
			Options:    opts,
			Points:     q.Points,
			Position:   pos + 1,
			OrderIndex: q.OrderIndex,
			ImageURL:   q.ImageURL,
		})
	}
	return out
}
