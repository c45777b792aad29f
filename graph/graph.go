package graph

import (
	"context"
	"errors"
)

// END is a special node name that terminates graph execution.
const END = "END"

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrEmptyNextNode is returned when a conditional edge yields an empty node name.
	ErrEmptyNextNode = errors.New("conditional edge returned empty next node")
)

// Node represents a node in the graph.
type Node[S any] struct {
	// Name is the unique identifier for the node.
	Name string

	// Description describes the functionality of the node.
	Description string

	// Function takes the current state and returns the updated state.
	Function func(ctx context.Context, state S) (S, error)
}

// Edge represents a static edge between two nodes.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// Condition picks the next node at runtime based on the current state.
// Returning END terminates execution.
type Condition[S any] func(ctx context.Context, state S) string
