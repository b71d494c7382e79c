package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mathsolver/solver-api/internal/core/domain"
	"github.com/mathsolver/solver-api/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubSolver struct {
	solveFn  func(ctx context.Context, question string) (string, error)
	streamFn func(ctx context.Context, question string) (ports.EventStream, error)
}

func (s *stubSolver) Solve(ctx context.Context, question string) (string, error) {
	return s.solveFn(ctx, question)
}

func (s *stubSolver) SolveStream(ctx context.Context, question string) (ports.EventStream, error) {
	return s.streamFn(ctx, question)
}

// scriptedEvents replays events, then io.EOF.
type scriptedEvents struct {
	events []domain.StreamEvent
	closed int
}

func (s *scriptedEvents) Next(ctx context.Context) (domain.StreamEvent, error) {
	if len(s.events) == 0 {
		return domain.StreamEvent{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptedEvents) Close() error {
	s.closed++
	return nil
}

func noSolve(t *testing.T) *stubSolver {
	return &stubSolver{
		solveFn: func(context.Context, string) (string, error) {
			t.Fatalf("solver should not be called")
			return "", nil
		},
		streamFn: func(context.Context, string) (ports.EventStream, error) {
			t.Fatalf("solver should not be called")
			return nil, nil
		},
	}
}

// frames splits an event-stream body into its decoded data payloads.
func frames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			t.Fatalf("unexpected line %q", line)
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("invalid frame %q: %v", line, err)
		}
		out = append(out, frame)
	}
	return out
}

func statuses(fs []map[string]any) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i], _ = f["status"].(string)
	}
	return strings.Join(parts, ",")
}

// ---------------------------------------------------------------------------
// Buffered
// ---------------------------------------------------------------------------

func TestSolveHandler_Solve_Success(t *testing.T) {
	solver := &stubSolver{solveFn: func(ctx context.Context, question string) (string, error) {
		if question != "2x = 4" {
			t.Fatalf("unexpected question %q", question)
		}
		return "x = 2", nil
	}}

	c, rec := postJSON(newEcho(), "/api/solve", `{"question":"2x = 4"}`)
	if err := NewSolveHandler(solver, zerolog.Nop()).Solve(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["status"] != "success" || resp["answer"] != "x = 2" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestSolveHandler_Solve_EmptyQuestion(t *testing.T) {
	for _, body := range []string{`{"question":""}`, `{"question":"   "}`, `{}`, `{"question":42}`} {
		c, rec := postJSON(newEcho(), "/api/solve", body)
		_ = NewSolveHandler(noSolve(t), zerolog.Nop()).Solve(c)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"error","error":"请提供有效的数学问题"}` {
			t.Fatalf("%s: unexpected body %s", body, got)
		}
	}
}

func TestSolveHandler_Solve_UpstreamFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"auth", &domain.UpstreamError{Kind: domain.UpstreamAuth}, http.StatusUnauthorized, "API认证失败，请检查API密钥"},
		{"timeout", &domain.UpstreamError{Kind: domain.UpstreamTimeout}, http.StatusInternalServerError, "API请求超时，请重试"},
		{"unknown", &domain.UpstreamError{Kind: domain.UpstreamUnknown, Cause: errors.New("boom")}, http.StatusInternalServerError, "API调用失败: boom"},
		{"empty answer", domain.ErrEmptyUpstreamAnswer, http.StatusInternalServerError, "API返回的答案为空"},
		{"malformed", domain.ErrMalformedUpstreamResponse, http.StatusInternalServerError, "API返回的响应格式不正确"},
		{"unexpected", errors.New("nil pointer"), http.StatusInternalServerError, "服务器内部错误，请稍后重试"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			solver := &stubSolver{solveFn: func(context.Context, string) (string, error) {
				return "", tc.err
			}}

			c, rec := postJSON(newEcho(), "/api/solve", `{"question":"1+1"}`)
			_ = NewSolveHandler(solver, zerolog.Nop()).Solve(c)

			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			resp := decodeBody(t, rec)
			if resp["status"] != "error" || resp["error"] != tc.msg {
				t.Fatalf("unexpected payload: %+v", resp)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func TestSolveHandler_Stream_HappyPath(t *testing.T) {
	events := &scriptedEvents{events: []domain.StreamEvent{
		{Kind: domain.EventStart},
		{Kind: domain.EventChunk, Content: "x = "},
		{Kind: domain.EventChunk, Content: "2"},
		{Kind: domain.EventDone},
	}}
	solver := &stubSolver{streamFn: func(ctx context.Context, question string) (ports.EventStream, error) {
		if question != "2x = 4" {
			t.Fatalf("unexpected question %q", question)
		}
		return events, nil
	}}

	c, rec := postJSON(newEcho(), "/api/solve/stream", `{"question":"2x = 4"}`)
	if err := NewSolveHandler(solver, zerolog.Nop()).Stream(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Header().Get("Cache-Control") != "no-cache" || rec.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatalf("missing streaming headers: %v", rec.Header())
	}

	want := `data: {"status":"start"}` + "\n\n" +
		`data: {"status":"chunk","content":"x = "}` + "\n\n" +
		`data: {"status":"chunk","content":"2"}` + "\n\n" +
		`data: {"status":"done"}` + "\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
	if events.closed == 0 {
		t.Fatalf("event stream not closed")
	}
}

func TestSolveHandler_Stream_GetWithQuery(t *testing.T) {
	solver := &stubSolver{streamFn: func(ctx context.Context, question string) (ports.EventStream, error) {
		if question != "1+1=?" {
			t.Fatalf("unexpected question %q", question)
		}
		return &scriptedEvents{events: []domain.StreamEvent{{Kind: domain.EventStart}, {Kind: domain.EventDone}}}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/solve/stream?question="+url.QueryEscape("1+1=?"), nil)
	rec := httptest.NewRecorder()
	c := newEcho().NewContext(req, rec)

	if err := NewSolveHandler(solver, zerolog.Nop()).Stream(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := statuses(frames(t, rec.Body.String())); got != "start,done" {
		t.Fatalf("unexpected frames %s", got)
	}
}

func TestSolveHandler_Stream_ErrorAfterStart(t *testing.T) {
	events := &scriptedEvents{events: []domain.StreamEvent{
		{Kind: domain.EventStart},
		{Kind: domain.EventChunk, Content: "a"},
		{Kind: domain.EventChunk, Content: "b"},
		{Kind: domain.EventError, Message: "API调用失败: connection reset", Failure: &domain.UpstreamError{Kind: domain.UpstreamUnknown}},
	}}
	solver := &stubSolver{streamFn: func(context.Context, string) (ports.EventStream, error) {
		return events, nil
	}}

	c, rec := postJSON(newEcho(), "/api/solve/stream", `{"question":"q"}`)
	_ = NewSolveHandler(solver, zerolog.Nop()).Stream(c)

	if rec.Code != http.StatusOK {
		t.Fatalf("status is fixed once streaming starts, got %d", rec.Code)
	}
	fs := frames(t, rec.Body.String())
	if got := statuses(fs); got != "start,chunk,chunk,error" {
		t.Fatalf("unexpected frames %s", got)
	}
	if fs[3]["error"] != "API调用失败: connection reset" {
		t.Fatalf("unexpected error frame %+v", fs[3])
	}
	if _, ok := fs[3]["content"]; ok {
		t.Fatalf("error frame must not carry content")
	}
}

func TestSolveHandler_Stream_StopsAtTerminalEvent(t *testing.T) {
	events := &scriptedEvents{events: []domain.StreamEvent{
		{Kind: domain.EventStart},
		{Kind: domain.EventDone},
		{Kind: domain.EventChunk, Content: "late"},
	}}
	solver := &stubSolver{streamFn: func(context.Context, string) (ports.EventStream, error) {
		return events, nil
	}}

	c, rec := postJSON(newEcho(), "/api/solve/stream", `{"question":"q"}`)
	_ = NewSolveHandler(solver, zerolog.Nop()).Stream(c)

	if got := statuses(frames(t, rec.Body.String())); got != "start,done" {
		t.Fatalf("nothing may follow the terminal frame, got %s", got)
	}
}

func TestSolveHandler_Stream_EmptyQuestionIsPlainJSON(t *testing.T) {
	c, rec := postJSON(newEcho(), "/api/solve/stream", `{"question":" "}`)
	_ = NewSolveHandler(noSolve(t), zerolog.Nop()).Stream(c)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		t.Fatalf("expected JSON error, got %q", ct)
	}
	if resp := decodeBody(t, rec); resp["error"] != "请提供有效的数学问题" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestSolveHandler_Stream_OpenFailureIsPlainJSON(t *testing.T) {
	solver := &stubSolver{streamFn: func(context.Context, string) (ports.EventStream, error) {
		return nil, &domain.UpstreamError{Kind: domain.UpstreamAuth, Cause: errors.New("invalid api key")}
	}}

	c, rec := postJSON(newEcho(), "/api/solve/stream", `{"question":"q"}`)
	_ = NewSolveHandler(solver, zerolog.Nop()).Stream(c)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "data:") {
		t.Fatalf("no event frames expected: %s", rec.Body.String())
	}
	if resp := decodeBody(t, rec); resp["error"] != "API认证失败，请检查API密钥" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

type cancelledEvents struct {
	closed int
}

func (s *cancelledEvents) Next(ctx context.Context) (domain.StreamEvent, error) {
	return domain.StreamEvent{}, context.Canceled
}

func (s *cancelledEvents) Close() error {
	s.closed++
	return nil
}

func TestSolveHandler_Stream_CallerGone(t *testing.T) {
	events := &cancelledEvents{}
	solver := &stubSolver{streamFn: func(context.Context, string) (ports.EventStream, error) {
		return events, nil
	}}

	c, rec := postJSON(newEcho(), "/api/solve/stream", `{"question":"q"}`)
	if err := NewSolveHandler(solver, zerolog.Nop()).Stream(c); err != nil {
		t.Fatalf("abandoned streams end quietly, got %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("no frames expected, got %q", rec.Body.String())
	}
	if events.closed != 1 {
		t.Fatalf("stream must be closed once, got %d", events.closed)
	}
}
