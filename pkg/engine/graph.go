package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Stage is one step of a generation pass. A stage runs once every stage named in
// After has completed; stages on the same level run concurrently.
type Stage struct {
	Name  string
	After []string
	Run   func(ctx context.Context, p *Pass) error
}

// Graph is a validated stage graph with its execution levels.
type Graph struct {
	stages     map[string]*Stage
	dependents map[string][]string
	inDegree   map[string]int
	levels     [][]string
}

// BuildGraph validates stages, rejects cycles and computes execution levels.
func BuildGraph(stages []Stage) (*Graph, error) {
	g := &Graph{
		stages:     make(map[string]*Stage, len(stages)),
		dependents: make(map[string][]string, len(stages)),
		inDegree:   make(map[string]int, len(stages)),
	}
	if err := g.initialize(stages); err != nil {
		return nil, err
	}
	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	if err := g.computeLevels(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) initialize(stages []Stage) error {
	for i := range stages {
		st := &stages[i]
		if st.Name == "" {
			return fmt.Errorf("stage has empty name")
		}
		if _, exists := g.stages[st.Name]; exists {
			return fmt.Errorf("duplicate stage: %s", st.Name)
		}
		g.stages[st.Name] = st
		g.inDegree[st.Name] = 0
	}

	for _, st := range stages {
		for _, dep := range st.After {
			if _, exists := g.stages[dep]; !exists {
				return fmt.Errorf("stage %s runs after unknown stage %s", st.Name, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], st.Name)
			g.inDegree[st.Name]++
		}
	}
	return nil
}

// detectCycles walks the graph depth-first from every stage.
func (g *Graph) detectCycles() error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(name string, path []string) []string
	visit = func(name string, path []string) []string {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, next := range g.dependents[name] {
			if onStack[next] {
				for i, id := range path {
					if id == next {
						return append(append([]string(nil), path[i:]...), next)
					}
				}
			}
			if !visited[next] {
				if cycle := visit(next, path); cycle != nil {
					return cycle
				}
			}
		}

		onStack[name] = false
		return nil
	}

	for _, name := range g.names() {
		if visited[name] {
			continue
		}
		if cycle := visit(name, nil); cycle != nil {
			return fmt.Errorf("stage cycle: %s", strings.Join(cycle, " -> "))
		}
	}
	return nil
}

// computeLevels is Kahn's algorithm, level by level. Names within a level are sorted.
func (g *Graph) computeLevels() error {
	remaining := make(map[string]int, len(g.inDegree))
	for name, n := range g.inDegree {
		remaining[name] = n
	}

	var current []string
	for name, n := range remaining {
		if n == 0 {
			current = append(current, name)
		}
	}

	processed := 0
	for len(current) > 0 {
		sort.Strings(current)
		g.levels = append(g.levels, current)
		processed += len(current)

		var next []string
		for _, name := range current {
			for _, dep := range g.dependents[name] {
				remaining[dep]--
				if remaining[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if processed != len(g.stages) {
		return fmt.Errorf("stage graph has unreachable stages")
	}
	return nil
}

func (g *Graph) names() []string {
	names := make([]string, 0, len(g.stages))
	for name := range g.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Levels returns the stage names grouped by execution level.
func (g *Graph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		out[i] = append([]string(nil), level...)
	}
	return out
}

// ToDOT renders the graph in Graphviz DOT format.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph GenerationPass {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range g.levels {
		fmt.Fprintf(&sb, "  subgraph cluster_level_%d {\n", level)
		fmt.Fprintf(&sb, "    label=\"Level %d\";\n", level)
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			fmt.Fprintf(&sb, "    %q;\n", name)
		}
		sb.WriteString("  }\n\n")
	}

	for _, name := range g.names() {
		for _, dep := range g.stages[name].After {
			fmt.Fprintf(&sb, "  %q -> %q;\n", dep, name)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
