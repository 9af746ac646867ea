package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"planline/internal/domain"
)

// Strategy is one allocation policy: an ordering over the eligible task set
// plus a per-task allocator. Allocate is all-or-nothing against the ledger:
// on error every partial commit made for the task has been rolled back.
type Strategy interface {
	Name() string
	Order(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task
	Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error)
}

// BatchStrategy replaces the one-task-at-a-time loop for policies that
// advance several tasks in parallel or search over candidate orderings.
// Run returns the successfully placed copies and records failures on the
// ledger itself.
type BatchStrategy interface {
	Strategy
	Run(tasks []domain.Task, byID map[string]domain.Task, led *Ledger) []domain.Task
}

// Options tune the search-based strategies. Deterministic strategies ignore
// them entirely.
type Options struct {
	// Seed drives the random source of the genetic and monte carlo
	// strategies. Equal seeds give identical runs.
	Seed int64
	// Iterations caps monte carlo samples. Zero means the default.
	Iterations int
	// Population and Generations size the genetic search. Zero means the
	// defaults.
	Population  int
	Generations int
}

// AlgorithmInfo describes a registered strategy for presentation layers.
type AlgorithmInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// DefaultAlgorithm is used when the caller names none.
const DefaultAlgorithm = "greedy"

type registryEntry struct {
	info  AlgorithmInfo
	build func(Options) Strategy
}

var registry = map[string]registryEntry{}

func register(info AlgorithmInfo, build func(Options) Strategy) {
	registry[info.ID] = registryEntry{info: info, build: build}
}

func init() {
	register(AlgorithmInfo{
		ID:          "greedy",
		DisplayName: "Greedy Forward",
		Description: "Fills each workday to capacity from the start date; front-loads work and minimizes completion time.",
	}, func(Options) Strategy { return greedyStrategy{} })
	register(AlgorithmInfo{
		ID:          "balanced",
		DisplayName: "Balanced",
		Description: "Spreads each task evenly across the window up to its deadline instead of front-loading.",
	}, func(Options) Strategy { return balancedStrategy{} })
	register(AlgorithmInfo{
		ID:          "backward",
		DisplayName: "Just-in-time",
		Description: "Schedules backward from the deadline so work completes as late as possible.",
	}, func(Options) Strategy { return backwardStrategy{} })
	register(AlgorithmInfo{
		ID:          "priority_first",
		DisplayName: "Priority First",
		Description: "Places higher-priority tasks first regardless of deadlines.",
	}, func(Options) Strategy { return priorityFirstStrategy{} })
	register(AlgorithmInfo{
		ID:          "earliest_deadline",
		DisplayName: "Earliest Deadline First",
		Description: "Places tasks in pure deadline order; priority has no influence.",
	}, func(Options) Strategy { return edfStrategy{} })
	register(AlgorithmInfo{
		ID:          "round_robin",
		DisplayName: "Round Robin",
		Description: "Rotates each day's capacity across all unfinished tasks so they progress together.",
	}, func(Options) Strategy { return &roundRobinStrategy{} })
	register(AlgorithmInfo{
		ID:          "dependency_aware",
		DisplayName: "Dependency Aware",
		Description: "Places prerequisite tasks before the tasks that depend on them.",
	}, func(Options) Strategy { return dependencyAwareStrategy{} })
	register(AlgorithmInfo{
		ID:          "genetic",
		DisplayName: "Genetic Search",
		Description: "Evolves task orderings across generations, keeping the candidate with the best fitness.",
	}, func(opts Options) Strategy { return newGeneticStrategy(opts) })
	register(AlgorithmInfo{
		ID:          "monte_carlo",
		DisplayName: "Monte Carlo Search",
		Description: "Samples random task orderings and keeps the candidate with the best fitness.",
	}, func(opts Options) Strategy { return newMonteCarloStrategy(opts) })
}

// New returns the named strategy. Lookup is case-sensitive; an unknown name
// is a caller error reporting the valid set.
func New(name string, opts Options) (Strategy, error) {
	if name == "" {
		name = DefaultAlgorithm
	}
	entry, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q; valid algorithms: %s", name, strings.Join(AlgorithmNames(), ", "))
	}
	return entry.build(opts), nil
}

// List returns metadata for all registered strategies, sorted by id.
func List() []AlgorithmInfo {
	infos := make([]AlgorithmInfo, 0, len(registry))
	for _, e := range registry {
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// AlgorithmNames returns the registered ids, sorted.
func AlgorithmNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
