package schedule

import (
	"math/rand"
	"sort"
	"time"

	"planline/internal/domain"
)

const (
	defaultPopulation  = 24
	defaultGenerations = 40
)

// geneticStrategy evolves task orderings: a population of permutations is
// scored by trial allocation, the better half survives each generation, and
// mutated copies (position swaps) refill the rest. The winning ordering is
// replayed against the ledger for real. The random source comes from
// Options.Seed only, never ambient state.
type geneticStrategy struct {
	seed        int64
	population  int
	generations int
}

func newGeneticStrategy(opts Options) *geneticStrategy {
	s := &geneticStrategy{seed: opts.Seed, population: opts.Population, generations: opts.Generations}
	if s.population <= 0 {
		s.population = defaultPopulation
	}
	if s.generations <= 0 {
		s.generations = defaultGenerations
	}
	return s
}

func (*geneticStrategy) Name() string { return "genetic" }

func (*geneticStrategy) Order(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task {
	return OrderByDeadlinePriority(tasks, byID, now)
}

func (*geneticStrategy) Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error) {
	return allocateForward(t, EffectiveDeadline(t, byID), led)
}

type scoredOrdering struct {
	order []domain.Task
	score float64
}

func (s *geneticStrategy) Run(tasks []domain.Task, byID map[string]domain.Task, led *Ledger) []domain.Task {
	base := s.Order(tasks, byID, led.now())
	if len(base) < 2 {
		return replayOrdering(base, byID, led)
	}
	rng := rand.New(rand.NewSource(s.seed))

	pop := make([]scoredOrdering, 0, s.population)
	pop = append(pop, scoredOrdering{order: base, score: evaluateOrdering(base, byID, led)})
	for len(pop) < s.population {
		cand := shuffled(base, rng)
		pop = append(pop, scoredOrdering{order: cand, score: evaluateOrdering(cand, byID, led)})
	}

	for gen := 0; gen < s.generations; gen++ {
		sort.SliceStable(pop, func(i, j int) bool { return pop[i].score < pop[j].score })
		elite := len(pop) / 2
		if elite < 1 {
			elite = 1
		}
		for i := elite; i < len(pop); i++ {
			parent := pop[rng.Intn(elite)].order
			child := mutated(parent, rng)
			pop[i] = scoredOrdering{order: child, score: evaluateOrdering(child, byID, led)}
		}
	}

	best := pop[0]
	for _, cand := range pop[1:] {
		if cand.score < best.score {
			best = cand
		}
	}
	return replayOrdering(best.order, byID, led)
}

func shuffled(order []domain.Task, rng *rand.Rand) []domain.Task {
	out := append([]domain.Task(nil), order...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// mutated swaps two positions of a parent ordering.
func mutated(parent []domain.Task, rng *rand.Rand) []domain.Task {
	out := append([]domain.Task(nil), parent...)
	i, j := rng.Intn(len(out)), rng.Intn(len(out))
	out[i], out[j] = out[j], out[i]
	return out
}
