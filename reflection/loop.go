package reflection

import (
	"context"
	"fmt"

	"github.com/smallnest/reflectgo/graph"
	"github.com/smallnest/reflectgo/log"
)

// DefaultMaxIterations bounds the critique budget when none is configured.
const DefaultMaxIterations = 3

// DefaultReviseInstruction prefixes critique feedback when it is fed back to
// the generation step as a user message.
const DefaultReviseInstruction = "Please improve your previous response based on this feedback: "

// Outcome is the terminal state of a finished loop.
type Outcome string

const (
	// OutcomeAccepted means the critique step passed the last candidate.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeExhausted means the iteration budget ran out and the last
	// candidate was returned as-is, unreflected. This is a normal result,
	// not an error.
	OutcomeExhausted Outcome = "exhausted"
)

// CritiqueResult is the structured verdict of a critique collaborator.
type CritiqueResult struct {
	// Passed reports whether the candidate is satisfactory.
	Passed bool

	// Feedback explains what to improve when Passed is false.
	Feedback string
}

// GenerateFunc produces the next candidate answer. It appends exactly one
// assistant message derived from the conversation so far. It must not change
// the iteration budget; the loop restores it after every call.
type GenerateFunc func(ctx context.Context, state State) (State, error)

// CritiqueFunc judges the last assistant message of the conversation.
type CritiqueFunc func(ctx context.Context, state State) (CritiqueResult, error)

// Result is the outcome of one loop invocation.
type Result struct {
	// FinalAnswer is the accepted answer, or the best available candidate
	// when the budget ran out.
	FinalAnswer string

	// Messages is the full conversation, feedback turns included.
	Messages []Message

	// IterationsUsed is the number of critique decisions made.
	IterationsUsed int

	// Outcome reports how the loop terminated.
	Outcome Outcome
}

// LoopConfig configures a reflection loop.
type LoopConfig struct {
	// MaxIterations is the maximum number of critique decisions before the
	// loop terminates with the best available answer. Defaults to
	// DefaultMaxIterations.
	MaxIterations int

	// ReviseInstruction prefixes critique feedback when it is re-injected
	// as a user message. Defaults to DefaultReviseInstruction.
	ReviseInstruction string

	// StrictPreconditions fails the run with a PreconditionError when the
	// critique step finds no unreflected assistant message, instead of
	// treating the conversation as already satisfactory.
	StrictPreconditions bool

	// Logger receives iteration progress. Defaults to a no-op logger.
	Logger log.Logger

	// Tracer, when set, records a span per node execution.
	Tracer *graph.Tracer
}

const (
	nodeGenerate = "generate"
	nodeCritique = "critique"
)

// Loop drives the generate -> critique cycle to an accepted answer or budget
// exhaustion. It is built as a two-node state graph: "generate" always hands
// over to "critique", and "critique" either loops back or ends the run.
//
// The loop is synchronous and single-threaded. Collaborator failures are not
// caught or retried here; they surface to the caller wrapped in
// GenerationError or CritiqueError.
type Loop struct {
	generate GenerateFunc
	critique CritiqueFunc
	config   LoopConfig
	logger   log.Logger
	runnable *graph.Runnable[loopState]
}

// loopState threads the conversation and loop bookkeeping through the graph.
type loopState struct {
	conv State

	// used counts critique decisions, including synthesized ones.
	used int

	// outcome is empty while the loop is still running.
	outcome Outcome
}

// NewLoop creates a reflection loop over the two collaborators.
func NewLoop(generate GenerateFunc, critique CritiqueFunc, config LoopConfig) (*Loop, error) {
	if generate == nil {
		return nil, fmt.Errorf("generate collaborator is required")
	}
	if critique == nil {
		return nil, fmt.Errorf("critique collaborator is required")
	}

	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.ReviseInstruction == "" {
		config.ReviseInstruction = DefaultReviseInstruction
	}

	logger := config.Logger
	if logger == nil {
		logger = &log.NoOpLogger{}
	}

	l := &Loop{
		generate: generate,
		critique: critique,
		config:   config,
		logger:   logger,
	}

	workflow := graph.NewStateGraph[loopState]()
	workflow.AddNode(nodeGenerate, "Produce the next candidate answer", l.generateNode)
	workflow.AddNode(nodeCritique, "Judge the last candidate and decide how to continue", l.critiqueNode)
	workflow.SetEntryPoint(nodeGenerate)
	workflow.AddConditionalEdge(nodeGenerate, func(ctx context.Context, s loopState) string {
		if s.outcome != "" {
			return graph.END
		}
		return nodeCritique
	})
	workflow.AddConditionalEdge(nodeCritique, func(ctx context.Context, s loopState) string {
		if s.outcome != "" {
			return graph.END
		}
		return nodeGenerate
	})

	runnable, err := workflow.Compile()
	if err != nil {
		return nil, err
	}
	if config.Tracer != nil {
		runnable.SetTracer(config.Tracer)
	}
	l.runnable = runnable

	return l, nil
}

// Run executes the loop over the given initial messages.
func (l *Loop) Run(ctx context.Context, initialMessages []Message) (*Result, error) {
	msgs := make([]Message, len(initialMessages))
	copy(msgs, initialMessages)

	initial := loopState{
		conv: State{
			Messages:            msgs,
			RemainingIterations: l.config.MaxIterations,
		},
	}

	final, err := l.runnable.Invoke(ctx, initial)
	if err != nil {
		return nil, err
	}

	return &Result{
		FinalAnswer:    final.conv.FinalAnswer,
		Messages:       final.conv.Messages,
		IterationsUsed: final.used,
		Outcome:        final.outcome,
	}, nil
}

// generateNode asks the generation collaborator for the next candidate.
func (l *Loop) generateNode(ctx context.Context, s loopState) (loopState, error) {
	if s.conv.RemainingIterations <= 0 {
		// Budget was gone before a new candidate could be produced.
		s.conv.FinalAnswer = s.conv.lastAssistantText()
		s.outcome = OutcomeExhausted
		return s, nil
	}

	l.logger.Debug("generating candidate (remaining budget %d)", s.conv.RemainingIterations)

	remaining := s.conv.RemainingIterations
	conv, err := l.generate(ctx, s.conv)
	if err != nil {
		return s, &GenerationError{Err: err}
	}
	// The generation step must not touch the budget.
	conv.RemainingIterations = remaining
	s.conv = conv

	return s, nil
}

// critiqueNode judges the last candidate and decides the transition:
// accept, revise, or exhaust.
func (l *Loop) critiqueNode(ctx context.Context, s loopState) (loopState, error) {
	result, invoked, err := l.judge(ctx, s.conv)
	if err != nil {
		return s, err
	}

	s.conv.RemainingIterations--
	s.used++

	if result.Passed {
		if last, ok := s.conv.LastMessage(); ok && last.Role == RoleAssistant {
			s.conv = s.conv.markLastReflected()
			s.conv.FinalAnswer = last.Text()
		}
		s.outcome = OutcomeAccepted
		if invoked {
			l.logger.Info("candidate accepted after %d iteration(s)", s.used)
		}
		return s, nil
	}

	if s.conv.RemainingIterations > 0 {
		l.logger.Debug("critique rejected candidate, revising: %s", result.Feedback)
		s.conv = s.conv.Append(UserMessage(l.config.ReviseInstruction + result.Feedback))
		return s, nil
	}

	// Budget spent: return the best available candidate, unreflected.
	s.conv.FinalAnswer = s.conv.lastAssistantText()
	s.outcome = OutcomeExhausted
	l.logger.Info("iteration budget exhausted after %d iteration(s)", s.used)

	return s, nil
}

// judge applies the critique preconditions and, when they hold, invokes the
// critique collaborator. The second return value reports whether the
// collaborator was actually called.
//
// The default no-op behavior (treating a missing or non-assistant last
// message as satisfactory) is inherited; StrictPreconditions turns it into
// an error instead.
func (l *Loop) judge(ctx context.Context, conv State) (CritiqueResult, bool, error) {
	last, ok := conv.LastMessage()
	if !ok {
		if l.config.StrictPreconditions {
			return CritiqueResult{}, false, &PreconditionError{Reason: "conversation is empty"}
		}
		return CritiqueResult{Passed: true}, false, nil
	}
	if last.Role != RoleAssistant {
		if l.config.StrictPreconditions {
			return CritiqueResult{}, false, &PreconditionError{Reason: "last message is not an assistant message"}
		}
		return CritiqueResult{Passed: true}, false, nil
	}
	if last.Reflected() {
		// An accepted answer is never re-submitted for critique.
		return CritiqueResult{Passed: true}, false, nil
	}

	result, err := l.critique(ctx, conv)
	if err != nil {
		return CritiqueResult{}, true, &CritiqueError{Err: err}
	}
	return result, true, nil
}

// RunReflectionLoop is the convenience entry point: it builds a loop with
// default settings and runs it once over the initial messages.
func RunReflectionLoop(ctx context.Context, initialMessages []Message, generate GenerateFunc, critique CritiqueFunc, maxIterations int) (*Result, error) {
	loop, err := NewLoop(generate, critique, LoopConfig{MaxIterations: maxIterations})
	if err != nil {
		return nil, err
	}
	return loop.Run(ctx, initialMessages)
}
