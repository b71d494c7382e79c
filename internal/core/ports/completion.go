package ports

import (
	"context"

	"github.com/mathsolver/solver-api/internal/core/domain"
)

// CompletionProvider is the upstream large-language-model endpoint.
type CompletionProvider interface {
	// Complete blocks until the whole answer is available.
	Complete(ctx context.Context, messages []domain.Message) (string, error)
	// Stream opens a streaming completion. An error means nothing was received.
	Stream(ctx context.Context, messages []domain.Message) (FragmentStream, error)
}

// FragmentStream yields raw incremental text from the provider.
type FragmentStream interface {
	// Recv returns the next fragment, io.EOF at a normal end of stream, or the
	// failure that interrupted it.
	Recv(ctx context.Context) (string, error)
	Close() error
}

// EventStream is a single-pass, non-restartable sequence of stream events.
// After the terminal event Next returns io.EOF.
type EventStream interface {
	Next(ctx context.Context) (domain.StreamEvent, error)
	Close() error
}

// SolverService answers math questions in buffered or streaming mode.
type SolverService interface {
	Solve(ctx context.Context, question string) (string, error)
	SolveStream(ctx context.Context, question string) (EventStream, error)
}
