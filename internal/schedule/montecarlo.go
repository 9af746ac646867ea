package schedule

import (
	"math/rand"
	"time"

	"planline/internal/domain"
)

const defaultMonteCarloIterations = 200

// monteCarloStrategy samples random task orderings, scores each by trial
// allocation, and replays the best. Simpler than the genetic search and often
// just as effective on small task sets.
type monteCarloStrategy struct {
	seed       int64
	iterations int
}

func newMonteCarloStrategy(opts Options) *monteCarloStrategy {
	s := &monteCarloStrategy{seed: opts.Seed, iterations: opts.Iterations}
	if s.iterations <= 0 {
		s.iterations = defaultMonteCarloIterations
	}
	return s
}

func (*monteCarloStrategy) Name() string { return "monte_carlo" }

func (*monteCarloStrategy) Order(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task {
	return OrderByDeadlinePriority(tasks, byID, now)
}

func (*monteCarloStrategy) Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error) {
	return allocateForward(t, EffectiveDeadline(t, byID), led)
}

func (s *monteCarloStrategy) Run(tasks []domain.Task, byID map[string]domain.Task, led *Ledger) []domain.Task {
	best := s.Order(tasks, byID, led.now())
	if len(best) < 2 {
		return replayOrdering(best, byID, led)
	}
	rng := rand.New(rand.NewSource(s.seed))
	bestScore := evaluateOrdering(best, byID, led)
	for i := 0; i < s.iterations; i++ {
		cand := shuffled(best, rng)
		if score := evaluateOrdering(cand, byID, led); score < bestScore {
			best, bestScore = cand, score
		}
	}
	return replayOrdering(best, byID, led)
}
