package reflection

import "fmt"

// GenerationError wraps a failure from the generation collaborator. The loop
// performs no recovery; the error aborts the run.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// CritiqueError wraps a failure from the critique collaborator.
type CritiqueError struct {
	Err error
}

func (e *CritiqueError) Error() string {
	return fmt.Sprintf("critique failed: %v", e.Err)
}

func (e *CritiqueError) Unwrap() error {
	return e.Err
}

// PreconditionError reports that the critique step found nothing to judge
// while strict preconditions are enabled.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("critique precondition violated: %s", e.Reason)
}
