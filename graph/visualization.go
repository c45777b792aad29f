package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Exporter provides methods to export graphs in different formats
type Exporter[S any] struct {
	graph *StateGraph[S]
}

// NewExporter creates a new graph exporter for the given graph
func NewExporter[S any](graph *StateGraph[S]) *Exporter[S] {
	return &Exporter[S]{graph: graph}
}

// DrawMermaid generates a Mermaid flowchart representation of the graph.
// Conditional edges are rendered as dotted arrows to every possible node,
// since their targets are only known at runtime.
func (ge *Exporter[S]) DrawMermaid() string {
	var sb strings.Builder

	sb.WriteString("flowchart TD\n")

	if ge.graph.entryPoint != "" {
		sb.WriteString("    START([\"START\"])\n")
		sb.WriteString(fmt.Sprintf("    START --> %s\n", ge.graph.entryPoint))
	}

	names := make([]string, 0, len(ge.graph.nodes))
	for name := range ge.graph.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := ge.graph.nodes[name]
		if node.Description != "" {
			sb.WriteString(fmt.Sprintf("    %s[\"%s<br/>%s\"]\n", name, name, node.Description))
		} else {
			sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", name, name))
		}
	}

	for _, edge := range ge.graph.edges {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", edge.From, edge.To))
	}

	conditionalFroms := make([]string, 0, len(ge.graph.conditionalEdges))
	for from := range ge.graph.conditionalEdges {
		conditionalFroms = append(conditionalFroms, from)
	}
	sort.Strings(conditionalFroms)

	for _, from := range conditionalFroms {
		for _, to := range names {
			sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", from, to))
		}
		sb.WriteString(fmt.Sprintf("    %s -.-> END\n", from))
	}

	if len(ge.graph.conditionalEdges) > 0 || hasEdgeTo(ge.graph.edges, END) {
		sb.WriteString("    END([\"END\"])\n")
	}

	return sb.String()
}

func hasEdgeTo(edges []Edge, to string) bool {
	for _, e := range edges {
		if e.To == to {
			return true
		}
	}
	return false
}
