package clients

import (
	"context"
	"iter"
)

// TextGenerator is the generation capability consumed by the planner,
// evaluator and answer generator. Implementations must be safe for
// concurrent use.
type TextGenerator interface {
	// Complete returns the full model response for a single prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Stream yields response fragments as they arrive. The sequence is
	// finite and not restartable; a non-nil error ends it.
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}
