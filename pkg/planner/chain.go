package planner

import (
	"fmt"
	"strings"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// ChainNode is a position or sector in a dilution chain.
type ChainNode struct {
	// ID identifies the node (a position label or a sector index).
	ID string

	// Parent is the ID of the node this one is diluted from, or "".
	Parent string

	// Concentration is the preparation concentration in nanomolar.
	Concentration float64

	// Level is the dilution step of the node. Starting nodes are level 0.
	Level int

	// Children are the nodes diluted from this one, in insertion order.
	Children []string
}

// ChainEdge is a parent to child dilution step.
type ChainEdge struct {
	From string
	To   string
}

// ChainGraph is the forest of dilution chains of a layout. Levels of the
// graph are the dilution series worklists of a generated series.
type ChainGraph struct {
	// nodes maps node IDs to nodes
	nodes map[string]*ChainNode

	// order keeps insertion order for deterministic levels
	order []string

	// levels maps dilution step to node IDs at that step
	levels [][]string
}

// NewChainGraph creates an empty chain graph.
func NewChainGraph() *ChainGraph {
	return &ChainGraph{
		nodes: make(map[string]*ChainNode),
	}
}

// AddNode registers a node. parent is "" for starting nodes.
func (g *ChainGraph) AddNode(id, parent string, concentration float64) error {
	if id == "" {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, "chain node has empty ID")
	}
	if _, exists := g.nodes[id]; exists {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("duplicate chain node: %s", id))
	}
	g.nodes[id] = &ChainNode{ID: id, Parent: parent, Concentration: concentration}
	g.order = append(g.order, id)
	return nil
}

// Build links the nodes, rejects cycles and computes the levels.
func (g *ChainGraph) Build() error {
	g.levels = nil
	for _, id := range g.order {
		g.nodes[id].Children = nil
	}
	for _, id := range g.order {
		node := g.nodes[id]
		if node.Parent == "" {
			continue
		}
		parent, ok := g.nodes[node.Parent]
		if !ok {
			return errdefs.NewLayoutError(errdefs.CodeUnknownParent,
				fmt.Sprintf("%s is diluted from unknown node %s", id, node.Parent)).WithPosition(id)
		}
		parent.Children = append(parent.Children, id)
	}

	if err := g.detectCycles(); err != nil {
		return err
	}
	g.computeLevels()
	return nil
}

// detectCycles uses depth-first search to reject circular parent links.
func (g *ChainGraph) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range g.order {
		if visited[id] {
			continue
		}
		if cycle := g.detectCyclesUtil(id, visited, recStack, nil); cycle != nil {
			return errdefs.NewLayoutError(errdefs.CodeUnknownParent,
				fmt.Sprintf("circular dilution chain: %s", formatCycle(cycle))).
				WithPosition(cycle[0])
		}
	}
	return nil
}

func (g *ChainGraph) detectCyclesUtil(id string, visited, recStack map[string]bool, path []string) []string {
	visited[id] = true
	recStack[id] = true
	path = append(path, id)

	for _, child := range g.nodes[id].Children {
		if !visited[child] {
			if cycle := g.detectCyclesUtil(child, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[child] {
			for i, p := range path {
				if p == child {
					return append(append([]string(nil), path[i:]...), child)
				}
			}
		}
	}

	recStack[id] = false
	return nil
}

// computeLevels assigns levels breadth first from the starting nodes.
func (g *ChainGraph) computeLevels() {
	current := make([]string, 0)
	for _, id := range g.order {
		if g.nodes[id].Parent == "" {
			current = append(current, id)
		}
	}
	for level := 0; len(current) > 0; level++ {
		g.levels = append(g.levels, current)
		next := make([]string, 0)
		for _, id := range current {
			g.nodes[id].Level = level
			next = append(next, g.nodes[id].Children...)
		}
		current = next
	}
}

// Node returns the node with the given ID.
func (g *ChainGraph) Node(id string) (*ChainNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *ChainGraph) Len() int { return len(g.nodes) }

// Levels returns node IDs per dilution step.
func (g *ChainGraph) Levels() [][]string { return g.levels }

// Depth returns the length of the longest chain.
func (g *ChainGraph) Depth() int { return len(g.levels) }

// Roots returns the starting nodes.
func (g *ChainGraph) Roots() []string {
	if len(g.levels) == 0 {
		return nil
	}
	return g.levels[0]
}

// Edges returns every dilution step ordered by level.
func (g *ChainGraph) Edges() []ChainEdge {
	edges := make([]ChainEdge, 0)
	for _, level := range g.levels {
		for _, id := range level {
			if parent := g.nodes[id].Parent; parent != "" {
				edges = append(edges, ChainEdge{From: parent, To: id})
			}
		}
	}
	return edges
}

// ToDOT generates a Graphviz representation of the dilution chains.
func (g *ChainGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph DilutionChains {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_step_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Step %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			n := g.nodes[id]
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\\n%.2f nM\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				id, id, n.Concentration, levelColor(level)))
		}
		sb.WriteString("  }\n\n")
	}

	for _, e := range g.Edges() {
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", e.From, e.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

func levelColor(level int) string {
	if level == 0 {
		return "lightgreen"
	}
	return "lightblue"
}
