package engine

import (
	"sort"

	"github.com/maximilian-tech/casita/graph"
)

// Rule is a pure function of engine state plus one node: Apply inspects
// n and, if its trigger predicate holds, mutates the
// graph/streams through their documented mutator methods and returns true.
// Rules never short-circuit each other -- every registered rule sees
// every node dispatched to it.
type Rule interface {
	// Name identifies the rule for logging and statistics.
	Name() string
	// Priority orders dispatch: rules run in descending priority order.
	Priority() int
	// Apply runs the rule against n, returning whether it applied.
	Apply(e *Engine, n graph.NodeRef) bool
}

// registry holds an engine's registered rules, kept sorted by descending
// priority after each Register call.
type registry struct {
	rules []Rule
}

// Register adds r to the registry and re-sorts by descending priority,
// ties broken by registration order (stable sort) so a paradigm plug-in's
// own rules keep a predictable relative order.
func (reg *registry) Register(r Rule) {
	reg.rules = append(reg.rules, r)
	sort.SliceStable(reg.rules, func(i, j int) bool {
		return reg.rules[i].Priority() > reg.rules[j].Priority()
	})
}

// Dispatch invokes every registered rule against n, in priority order,
// regardless of whether an earlier rule applied.
func (reg *registry) Dispatch(e *Engine, n graph.NodeRef) {
	for _, r := range reg.rules {
		r.Apply(e, n)
	}
}
