package guidelines

import (
	"math"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/vector"
)

// candidatePool is how many store hits diversity ranking chooses from per
// requested excerpt.
const candidatePool = 3

// WithDiversity reranks search results by maximal marginal relevance so
// near-duplicate excerpts from overlapping guidelines do not crowd out the
// rest. lambda weighs relevance against novelty; values outside (0, 1)
// leave ranking untouched.
func WithDiversity(lambda float64) Option {
	return func(r *Retriever) {
		if lambda > 0 && lambda < 1 {
			r.lambda = float32(lambda)
		}
	}
}

// mmr picks up to limit candidates greedily. Scores on the returned
// embeddings are their original similarities.
func mmr(candidates []*vector.Embedding, lambda float32, limit int) []*vector.Embedding {
	remaining := append([]*vector.Embedding(nil), candidates...)
	selected := make([]*vector.Embedding, 0, limit)
	for len(remaining) > 0 && len(selected) < limit {
		bestIdx := -1
		bestScore := float32(math.Inf(-1))
		for i, c := range remaining {
			var penalty float32
			for _, picked := range selected {
				if len(c.Vector) == 0 || len(picked.Vector) != len(c.Vector) {
					continue
				}
				penalty = max(penalty, vector.CosineSimilarity(c.Vector, picked.Vector))
			}
			score := lambda*c.Score - (1-lambda)*penalty
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}
