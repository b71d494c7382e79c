package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mathsolver/solver-api/internal/core/domain"
)

const mimeEventStream = "text/event-stream"

// streamFrame is the JSON payload of one event-stream data frame.
type streamFrame struct {
	Status  string `json:"status"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func frameFor(ev domain.StreamEvent) streamFrame {
	switch ev.Kind {
	case domain.EventChunk:
		return streamFrame{Status: string(ev.Kind), Content: ev.Content}
	case domain.EventError:
		return streamFrame{Status: string(ev.Kind), Error: ev.Message}
	default:
		return streamFrame{Status: string(ev.Kind)}
	}
}

// eventWriter serializes stream events onto a committed response.
type eventWriter struct {
	res *echo.Response
}

// commitEventStream sends the event-stream headers. The status code cannot
// change afterwards.
func commitEventStream(res *echo.Response) *eventWriter {
	h := res.Header()
	h.Set(echo.HeaderContentType, mimeEventStream)
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()
	return &eventWriter{res: res}
}

// Write emits ev as a single "data: <json>\n\n" frame and flushes it.
func (w *eventWriter) Write(ev domain.StreamEvent) error {
	payload, err := json.Marshal(frameFor(ev))
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if _, err := fmt.Fprintf(w.res, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}
