package catalog

import (
	"slices"
	"sort"
)

// PipelineOrder returns every table in dependency order using Kahn's
// algorithm. Among tables that are ready at the same time the alphabetically
// smallest goes first, so the order is stable across runs.
func (r *Registry) PipelineOrder() ([]string, error) {
	return r.OrderFor(r.names)
}

// OrderFor orders a subset of tables. Only dependencies between tables in the
// subset are considered; the subset is not expanded with missing parents.
func (r *Registry) OrderFor(tables []string) ([]string, error) {
	g, err := r.subgraph(tables)
	if err != nil {
		return nil, err
	}
	return g.order()
}

// ExecutionLevels groups tables into levels. Every table's dependencies are in
// earlier levels, so tables within one level may run concurrently. A nil or
// empty subset means all tables.
func (r *Registry) ExecutionLevels(tables []string) ([][]string, error) {
	if len(tables) == 0 {
		tables = r.names
	}
	g, err := r.subgraph(tables)
	if err != nil {
		return nil, err
	}
	return g.levels()
}

// graph is a dependency graph restricted to a node set.
// deps[n] lists the tables n depends on; children is the reverse.
type graph struct {
	nodes    []string
	deps     map[string][]string
	children map[string][]string
}

func (r *Registry) subgraph(tables []string) (*graph, error) {
	in := make(map[string]bool, len(tables))
	g := &graph{deps: make(map[string][]string), children: make(map[string][]string)}

	for _, t := range tables {
		if _, ok := r.configs[t]; !ok {
			return nil, &ConfigNotFoundError{Table: t}
		}
		if in[t] {
			continue
		}
		in[t] = true
		g.nodes = append(g.nodes, t)
	}
	sort.Strings(g.nodes)

	for _, n := range g.nodes {
		seen := make(map[string]bool)
		for _, d := range r.configs[n].Dependencies {
			if !in[d] || seen[d] {
				continue
			}
			seen[d] = true
			g.deps[n] = append(g.deps[n], d)
			g.children[d] = append(g.children[d], n)
		}
		sort.Strings(g.deps[n])
	}
	return g, nil
}

func (g *graph) indegrees() map[string]int {
	in := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		in[n] = len(g.deps[n])
	}
	return in
}

func (g *graph) order() ([]string, error) {
	indegree := g.indegrees()

	var ready []string
	for _, n := range g.nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	out := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)

		for _, c := range g.children[n] {
			indegree[c]--
			if indegree[c] == 0 {
				i, _ := slices.BinarySearch(ready, c)
				ready = slices.Insert(ready, i, c)
			}
		}
	}

	if len(out) < len(g.nodes) {
		return nil, &CircularDependencyError{Cycle: g.findCycle(indegree)}
	}
	return out, nil
}

func (g *graph) levels() ([][]string, error) {
	indegree := g.indegrees()

	var ready []string
	for _, n := range g.nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	var levels [][]string
	done := 0
	for len(ready) > 0 {
		sort.Strings(ready)
		levels = append(levels, ready)
		done += len(ready)

		var next []string
		for _, n := range ready {
			for _, c := range g.children[n] {
				indegree[c]--
				if indegree[c] == 0 {
					next = append(next, c)
				}
			}
		}
		ready = next
	}

	if done < len(g.nodes) {
		return nil, &CircularDependencyError{Cycle: g.findCycle(indegree)}
	}
	return levels, nil
}

// findCycle walks the nodes Kahn could not place and returns one cycle,
// following dependency edges, with the first table repeated at the end.
func (g *graph) findCycle(indegree map[string]int) []string {
	const (
		unvisited = iota
		onStack
		finished
	)
	state := make(map[string]int)
	var stack, cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		state[n] = onStack
		stack = append(stack, n)
		for _, d := range g.deps[n] {
			switch state[d] {
			case onStack:
				i := slices.Index(stack, d)
				cycle = append(slices.Clone(stack[i:]), d)
				return true
			case unvisited:
				if visit(d) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = finished
		return false
	}

	for _, n := range g.nodes {
		if indegree[n] > 0 && state[n] == unvisited {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}
