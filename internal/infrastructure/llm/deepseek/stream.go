package deepseek

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	ssePrefix  = "data:"
	sseDone    = "[DONE]"
	maxSSELine = 1 << 20
)

var errStreamTruncated = errors.New("deepseek: stream closed before completion")

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// streamReader reads Server-Sent Events from a chat completions stream.
type streamReader struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	finished bool
	done     bool

	closeOnce sync.Once
	closeErr  error
}

func newStreamReader(body io.ReadCloser) *streamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxSSELine)
	return &streamReader{body: body, scanner: scanner}
}

// Recv returns the next content delta. Deltas may be empty (role-only or
// finish frames). It returns io.EOF after [DONE], or after a clean end of body
// once a finish_reason has been seen.
func (s *streamReader) Recv(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", ctxErr
				}
				return "", fmt.Errorf("deepseek: read stream: %w", err)
			}
			if s.finished {
				s.done = true
				return "", io.EOF
			}
			return "", errStreamTruncated
		}

		line := s.scanner.Text()
		if !strings.HasPrefix(line, ssePrefix) {
			// blank separators, ": keep-alive" comments, event/id fields
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, ssePrefix))
		if data == sseDone {
			s.done = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("deepseek: parse stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("deepseek: stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.finished = true
		}
		return choice.Delta.Content, nil
	}
}

// Close releases the response body, aborting the upstream call if it is still open.
func (s *streamReader) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
