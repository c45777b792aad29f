package graph

import (
	"context"
	"fmt"
)

// StateGraph represents a state-based graph with compile-time type safety.
// The type parameter S is the state type threaded through every node.
//
// Execution is strictly sequential: exactly one node runs at a time, and the
// next node is determined only after the previous one has returned. There is
// no parallel fan-out and no internal retry; a node error aborts the run.
//
// Example usage:
//
//	type MyState struct {
//	    Count int
//	}
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("increment", "Increment counter", func(ctx context.Context, state MyState) (MyState, error) {
//	    state.Count++
//	    return state, nil
//	})
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node[S]

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// conditionalEdges maps a "From" node to a condition deriving the "To" node
	conditionalEdges map[string]Condition[S]

	// entryPoint is the name of the entry point node in the graph
	entryPoint string
}

// NewStateGraph creates a new instance of StateGraph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]Condition[S]),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a static edge between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition Condition[S]) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// Runnable represents a compiled state graph that can be invoked.
type Runnable[S any] struct {
	graph  *StateGraph[S]
	tracer *Tracer
}

// Compile compiles the state graph and returns a Runnable instance.
func (g *StateGraph[S]) Compile() (*Runnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}

	return &Runnable[S]{graph: g}, nil
}

// SetTracer sets a tracer for observability.
func (r *Runnable[S]) SetTracer(tracer *Tracer) {
	r.tracer = tracer
}

// Invoke executes the compiled state graph with the given input state and
// returns the final state once END is reached.
func (r *Runnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	var zero S

	state := initialState
	current := r.graph.entryPoint

	var graphSpan *TraceSpan
	if r.tracer != nil {
		graphSpan = r.tracer.StartSpan(ctx, TraceEventGraphStart, "graph")
	}

	for current != END {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return zero, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		var nodeSpan *TraceSpan
		if r.tracer != nil {
			nodeSpan = r.tracer.StartSpan(ctx, TraceEventNodeStart, current)
		}

		result, err := node.Function(ctx, state)

		if r.tracer != nil {
			r.tracer.EndSpan(ctx, nodeSpan, result, err)
		}
		if err != nil {
			return zero, fmt.Errorf("error in node %s: %w", current, err)
		}
		state = result

		next, err := r.nextNode(ctx, current, state)
		if err != nil {
			return zero, err
		}
		current = next
	}

	if r.tracer != nil {
		r.tracer.EndSpan(ctx, graphSpan, state, nil)
	}

	return state, nil
}

// nextNode determines the successor of a node, preferring conditional edges.
func (r *Runnable[S]) nextNode(ctx context.Context, current string, state S) (string, error) {
	if condition, ok := r.graph.conditionalEdges[current]; ok {
		next := condition(ctx, state)
		if next == "" {
			return "", fmt.Errorf("%w: from %s", ErrEmptyNextNode, current)
		}
		return next, nil
	}

	for _, edge := range r.graph.edges {
		if edge.From == current {
			return edge.To, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, current)
}
