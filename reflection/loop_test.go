package reflection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// stubGenerator returns canned answers in order and records the state seen
// by each call.
type stubGenerator struct {
	answers []string
	calls   int
	seen    []State
}

func (g *stubGenerator) generate(ctx context.Context, state State) (State, error) {
	g.seen = append(g.seen, state)
	answer := g.answers[g.calls%len(g.answers)]
	g.calls++
	return state.Append(AssistantMessage(answer)), nil
}

// stubCritic returns canned verdicts in order.
type stubCritic struct {
	verdicts []CritiqueResult
	calls    int
}

func (c *stubCritic) critique(ctx context.Context, state State) (CritiqueResult, error) {
	verdict := c.verdicts[c.calls%len(c.verdicts)]
	c.calls++
	return verdict, nil
}

func question(text string) []Message {
	return []Message{UserMessage(text)}
}

func TestAcceptAndStop(t *testing.T) {
	gen := &stubGenerator{answers: []string{"the answer"}}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: true}}}

	result, err := RunReflectionLoop(context.Background(), question("a question"), gen.generate, crit.critique, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gen.calls != 1 {
		t.Errorf("expected 1 generate call, got %d", gen.calls)
	}
	if crit.calls != 1 {
		t.Errorf("expected 1 critique call, got %d", crit.calls)
	}
	if result.FinalAnswer != "the answer" {
		t.Errorf("expected final answer %q, got %q", "the answer", result.FinalAnswer)
	}
	if result.IterationsUsed != 1 {
		t.Errorf("expected 1 iteration used, got %d", result.IterationsUsed)
	}
	if result.Outcome != OutcomeAccepted {
		t.Errorf("expected outcome %q, got %q", OutcomeAccepted, result.Outcome)
	}

	last := result.Messages[len(result.Messages)-1]
	if last.Role != RoleAssistant || !last.Reflected() {
		t.Error("expected last message to be a reflected assistant message")
	}
}

func TestReviseOnFail(t *testing.T) {
	gen := &stubGenerator{answers: []string{
		"def add(a,b): return a+b",
		"def add(a: int, b: int) -> int: return a + b",
	}}
	crit := &stubCritic{verdicts: []CritiqueResult{
		{Passed: false, Feedback: "add type hints"},
		{Passed: true},
	}}

	result, err := RunReflectionLoop(context.Background(), question("Write a function that adds two numbers"), gen.generate, crit.critique, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.IterationsUsed != 2 {
		t.Errorf("expected 2 iterations used, got %d", result.IterationsUsed)
	}
	if result.FinalAnswer != "def add(a: int, b: int) -> int: return a + b" {
		t.Errorf("unexpected final answer: %q", result.FinalAnswer)
	}

	// The second generate call must see the feedback as a user message.
	if len(gen.seen) != 2 {
		t.Fatalf("expected 2 generate calls, got %d", len(gen.seen))
	}
	second := gen.seen[1]
	last, ok := second.LastMessage()
	if !ok || last.Role != RoleUser {
		t.Fatal("expected revision state to end with a user message")
	}
	if !strings.Contains(last.Text(), "add type hints") {
		t.Errorf("expected feedback in revision message, got %q", last.Text())
	}
}

func TestExhaustionFallback(t *testing.T) {
	gen := &stubGenerator{answers: []string{"draft 1", "draft 2", "draft 3"}}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: false, Feedback: "not good enough"}}}

	result, err := RunReflectionLoop(context.Background(), question("a question"), gen.generate, crit.critique, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if crit.calls != 3 {
		t.Errorf("expected 3 critique calls, got %d", crit.calls)
	}
	if result.IterationsUsed != 3 {
		t.Errorf("expected 3 iterations used, got %d", result.IterationsUsed)
	}
	if result.FinalAnswer != "draft 3" {
		t.Errorf("expected last draft as final answer, got %q", result.FinalAnswer)
	}
	if result.Outcome != OutcomeExhausted {
		t.Errorf("expected outcome %q, got %q", OutcomeExhausted, result.Outcome)
	}

	// Best-effort answer, never marked reflected.
	last := result.Messages[len(result.Messages)-1]
	if last.Reflected() {
		t.Error("exhausted answer must not be marked reflected")
	}
}

func TestTerminationBound(t *testing.T) {
	for _, maxIterations := range []int{1, 2, 5, 10} {
		gen := &stubGenerator{answers: []string{"draft"}}
		crit := &stubCritic{verdicts: []CritiqueResult{{Passed: false, Feedback: "no"}}}

		result, err := RunReflectionLoop(context.Background(), question("q"), gen.generate, crit.critique, maxIterations)
		if err != nil {
			t.Fatalf("max=%d: unexpected error: %v", maxIterations, err)
		}
		if crit.calls != maxIterations {
			t.Errorf("max=%d: expected %d critique calls, got %d", maxIterations, maxIterations, crit.calls)
		}
		if result.IterationsUsed > maxIterations {
			t.Errorf("max=%d: iterations used %d exceeds budget", maxIterations, result.IterationsUsed)
		}
	}
}

func TestNoOpGenerateExitsAfterOneCycle(t *testing.T) {
	noop := func(ctx context.Context, state State) (State, error) {
		return state, nil
	}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: false, Feedback: "never reached"}}}

	result, err := RunReflectionLoop(context.Background(), question("a question"), noop, crit.critique, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if crit.calls != 0 {
		t.Errorf("critique collaborator must not be called, got %d calls", crit.calls)
	}
	if result.Outcome != OutcomeAccepted {
		t.Errorf("expected outcome %q, got %q", OutcomeAccepted, result.Outcome)
	}
	if result.FinalAnswer != "" {
		t.Errorf("expected no final answer, got %q", result.FinalAnswer)
	}
	if result.IterationsUsed != 1 {
		t.Errorf("expected 1 iteration used, got %d", result.IterationsUsed)
	}
}

func TestEmptyInitialMessagesWithNoOpGenerate(t *testing.T) {
	noop := func(ctx context.Context, state State) (State, error) {
		return state, nil
	}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: false}}}

	result, err := RunReflectionLoop(context.Background(), nil, noop, crit.critique, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crit.calls != 0 {
		t.Errorf("critique collaborator must not be called, got %d calls", crit.calls)
	}
	if result.Outcome != OutcomeAccepted {
		t.Errorf("expected outcome %q, got %q", OutcomeAccepted, result.Outcome)
	}
	if result.FinalAnswer != "" {
		t.Errorf("expected no final answer, got %q", result.FinalAnswer)
	}
}

func TestReflectedMessageNotResubmitted(t *testing.T) {
	noop := func(ctx context.Context, state State) (State, error) {
		return state, nil
	}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: false}}}

	initial := []Message{
		UserMessage("a question"),
		AssistantMessage("an accepted answer").WithReflected(),
	}

	result, err := RunReflectionLoop(context.Background(), initial, noop, crit.critique, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crit.calls != 0 {
		t.Errorf("reflected message must not be re-submitted, got %d critique calls", crit.calls)
	}
	if result.Outcome != OutcomeAccepted {
		t.Errorf("expected outcome %q, got %q", OutcomeAccepted, result.Outcome)
	}
	if result.FinalAnswer != "an accepted answer" {
		t.Errorf("unexpected final answer: %q", result.FinalAnswer)
	}
}

func TestGenerateCannotMutateBudget(t *testing.T) {
	greedy := func(ctx context.Context, state State) (State, error) {
		next := state.Append(AssistantMessage("draft"))
		next.RemainingIterations = 99
		return next, nil
	}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: false, Feedback: "no"}}}

	result, err := RunReflectionLoop(context.Background(), question("q"), greedy, crit.critique, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crit.calls != 2 {
		t.Errorf("expected 2 critique calls despite budget tampering, got %d", crit.calls)
	}
	if result.IterationsUsed != 2 {
		t.Errorf("expected 2 iterations used, got %d", result.IterationsUsed)
	}
}

func TestGenerationFailurePropagates(t *testing.T) {
	boom := errors.New("model unavailable")
	failing := func(ctx context.Context, state State) (State, error) {
		return state, boom
	}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: true}}}

	_, err := RunReflectionLoop(context.Background(), question("q"), failing, crit.critique, 3)
	if err == nil {
		t.Fatal("expected error")
	}

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T: %v", err, err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected original error in chain")
	}
	if crit.calls != 0 {
		t.Errorf("critique must not run after a generation failure, got %d calls", crit.calls)
	}
}

func TestCritiqueFailurePropagates(t *testing.T) {
	gen := &stubGenerator{answers: []string{"draft"}}
	boom := errors.New("judge unavailable")
	failing := func(ctx context.Context, state State) (CritiqueResult, error) {
		return CritiqueResult{}, boom
	}

	_, err := RunReflectionLoop(context.Background(), question("q"), gen.generate, failing, 3)
	if err == nil {
		t.Fatal("expected error")
	}

	var critErr *CritiqueError
	if !errors.As(err, &critErr) {
		t.Fatalf("expected CritiqueError, got %T: %v", err, err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected original error in chain")
	}
}

func TestStrictPreconditions(t *testing.T) {
	noop := func(ctx context.Context, state State) (State, error) {
		return state, nil
	}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: true}}}

	loop, err := NewLoop(noop, crit.critique, LoopConfig{StrictPreconditions: true})
	if err != nil {
		t.Fatalf("failed to create loop: %v", err)
	}

	_, err = loop.Run(context.Background(), question("q"))
	if err == nil {
		t.Fatal("expected error")
	}
	var preErr *PreconditionError
	if !errors.As(err, &preErr) {
		t.Fatalf("expected PreconditionError, got %T: %v", err, err)
	}
}

func TestDefaultMaxIterations(t *testing.T) {
	gen := &stubGenerator{answers: []string{"draft"}}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: false, Feedback: "no"}}}

	result, err := RunReflectionLoop(context.Background(), question("q"), gen.generate, crit.critique, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IterationsUsed != DefaultMaxIterations {
		t.Errorf("expected default budget of %d, got %d iterations", DefaultMaxIterations, result.IterationsUsed)
	}
}

func TestNewLoopValidation(t *testing.T) {
	gen := &stubGenerator{answers: []string{"draft"}}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: true}}}

	if _, err := NewLoop(nil, crit.critique, LoopConfig{}); err == nil {
		t.Error("expected error for nil generate collaborator")
	}
	if _, err := NewLoop(gen.generate, nil, LoopConfig{}); err == nil {
		t.Error("expected error for nil critique collaborator")
	}
}

func TestReviseInstructionConfigurable(t *testing.T) {
	gen := &stubGenerator{answers: []string{"draft 1", "draft 2"}}
	crit := &stubCritic{verdicts: []CritiqueResult{
		{Passed: false, Feedback: "more detail"},
		{Passed: true},
	}}

	loop, err := NewLoop(gen.generate, crit.critique, LoopConfig{
		MaxIterations:     3,
		ReviseInstruction: "Revise using this feedback: ",
	})
	if err != nil {
		t.Fatalf("failed to create loop: %v", err)
	}

	if _, err := loop.Run(context.Background(), question("q")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last, _ := gen.seen[1].LastMessage()
	if last.Text() != "Revise using this feedback: more detail" {
		t.Errorf("unexpected revision message: %q", last.Text())
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &stubGenerator{answers: []string{"draft"}}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: true}}}

	_, err := RunReflectionLoop(ctx, question("q"), gen.generate, crit.critique, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConversationAlternation(t *testing.T) {
	// With a well-behaved generator the loop never leaves two consecutive
	// assistant messages without an intervening critique decision.
	gen := &stubGenerator{answers: []string{"d1", "d2", "d3"}}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: false, Feedback: "no"}}}

	result, err := RunReflectionLoop(context.Background(), question("q"), gen.generate, crit.critique, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 1; i < len(result.Messages); i++ {
		if result.Messages[i].Role == RoleAssistant && result.Messages[i-1].Role == RoleAssistant {
			t.Fatalf("consecutive assistant messages at %d: %v", i, result.Messages)
		}
	}
}

func TestRunReflectionLoopScenario(t *testing.T) {
	// The canonical two-round scenario: a first draft is rejected for
	// missing type hints, the revision passes.
	calls := 0
	gen := func(ctx context.Context, state State) (State, error) {
		calls++
		if calls == 1 {
			return state.Append(AssistantMessage("def add(a,b): return a+b")), nil
		}
		return state.Append(AssistantMessage("def add(a: int, b: int) -> int: return a + b")), nil
	}
	critCalls := 0
	crit := func(ctx context.Context, state State) (CritiqueResult, error) {
		critCalls++
		if critCalls == 1 {
			return CritiqueResult{Passed: false, Feedback: "add type hints"}, nil
		}
		return CritiqueResult{Passed: true}, nil
	}

	result, err := RunReflectionLoop(context.Background(), question("Write a function that adds two numbers"), gen, crit, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IterationsUsed != 2 {
		t.Errorf("expected 2 iterations, got %d", result.IterationsUsed)
	}
	if result.FinalAnswer != "def add(a: int, b: int) -> int: return a + b" {
		t.Errorf("unexpected final answer: %q", result.FinalAnswer)
	}
}

func TestManyIterationsStayBounded(t *testing.T) {
	gen := &stubGenerator{}
	for i := 0; i < 7; i++ {
		gen.answers = append(gen.answers, fmt.Sprintf("draft %d", i+1))
	}
	crit := &stubCritic{verdicts: []CritiqueResult{{Passed: false, Feedback: "again"}}}

	result, err := RunReflectionLoop(context.Background(), question("q"), gen.generate, crit.critique, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FinalAnswer != "draft 7" {
		t.Errorf("expected final answer %q, got %q", "draft 7", result.FinalAnswer)
	}
	if result.IterationsUsed != 7 {
		t.Errorf("expected 7 iterations, got %d", result.IterationsUsed)
	}
}
