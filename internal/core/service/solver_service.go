package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mathsolver/solver-api/internal/core/domain"
	"github.com/mathsolver/solver-api/internal/core/ports"
)

// SolverService relays math questions to the completion provider.
type SolverService struct {
	provider ports.CompletionProvider
	log      zerolog.Logger
}

// NewSolverService returns a SolverService backed by provider.
func NewSolverService(provider ports.CompletionProvider, log zerolog.Logger) *SolverService {
	return &SolverService{provider: provider, log: log}
}

// buildMessages trims the question and puts the fixed system prompt in front of it.
func buildMessages(question string) ([]domain.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	return []domain.Message{
		{Role: domain.RoleSystem, Content: domain.SystemPrompt},
		{Role: domain.RoleUser, Content: question},
	}, nil
}

// Solve returns the provider's full answer, trimmed.
func (s *SolverService) Solve(ctx context.Context, question string) (string, error) {
	messages, err := buildMessages(question)
	if err != nil {
		return "", err
	}

	s.log.Debug().Int("question_len", len(messages[1].Content)).Msg("sending completion request")

	answer, err := s.provider.Complete(ctx, messages)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedUpstreamResponse) {
			return "", err
		}
		ue := domain.ClassifyUpstream(err)
		s.log.Error().Err(err).Str("kind", ue.Kind.String()).Msg("completion failed")
		return "", ue
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", domain.ErrEmptyUpstreamAnswer
	}
	return answer, nil
}

// SolveStream opens a streaming completion. Failures to open the upstream call
// are returned here, before any event exists; later failures become the
// stream's terminal error event.
func (s *SolverService) SolveStream(ctx context.Context, question string) (ports.EventStream, error) {
	messages, err := buildMessages(question)
	if err != nil {
		return nil, err
	}

	fragments, err := s.provider.Stream(ctx, messages)
	if err != nil {
		ue := domain.ClassifyUpstream(err)
		s.log.Error().Err(err).Str("kind", ue.Kind.String()).Msg("stream open failed")
		return nil, ue
	}

	return &eventStream{fragments: fragments, log: s.log}, nil
}

type streamState int

const (
	stateIdle streamState = iota
	stateRelaying
	stateFinished
)

// eventStream turns provider fragments into start → chunk* → (done | error).
type eventStream struct {
	fragments ports.FragmentStream
	log       zerolog.Logger

	state     streamState
	closeOnce sync.Once
	closeErr  error
}

func (e *eventStream) Next(ctx context.Context) (domain.StreamEvent, error) {
	switch e.state {
	case stateFinished:
		return domain.StreamEvent{}, io.EOF
	case stateIdle:
		e.state = stateRelaying
		return domain.StreamEvent{Kind: domain.EventStart}, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			e.finish()
			return domain.StreamEvent{}, err
		}

		fragment, err := e.fragments.Recv(ctx)
		switch {
		case err == nil:
			if fragment == "" {
				continue
			}
			return domain.StreamEvent{Kind: domain.EventChunk, Content: fragment}, nil

		case errors.Is(err, io.EOF):
			e.finish()
			return domain.StreamEvent{Kind: domain.EventDone}, nil

		case ctx.Err() != nil:
			// The caller went away; there is nobody left to deliver an error frame to.
			e.finish()
			return domain.StreamEvent{}, ctx.Err()

		default:
			ue := domain.ClassifyUpstream(err)
			e.log.Error().Err(err).Str("kind", ue.Kind.String()).Msg("stream interrupted")
			e.finish()
			return domain.StreamEvent{Kind: domain.EventError, Message: ue.UserMessage(), Failure: ue}, nil
		}
	}
}

func (e *eventStream) finish() {
	e.state = stateFinished
	_ = e.Close()
}

// Close releases the upstream handle. It is safe to call more than once.
func (e *eventStream) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.fragments.Close()
	})
	return e.closeErr
}
