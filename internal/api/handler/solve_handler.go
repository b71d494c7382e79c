package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mathsolver/solver-api/internal/api/metrics"
	"github.com/mathsolver/solver-api/internal/core/domain"
	"github.com/mathsolver/solver-api/internal/core/ports"
)

const (
	modeBuffered = "buffered"
	modeStream   = "stream"
)

// SolveHandler relays questions to the solver in buffered or event-stream mode.
type SolveHandler struct {
	solver ports.SolverService
	log    zerolog.Logger
}

func NewSolveHandler(solver ports.SolverService, log zerolog.Logger) *SolveHandler {
	return &SolveHandler{solver: solver, log: log}
}

type solveRequest struct {
	Question string `json:"question" query:"question" validate:"notblank" example:"解方程 2x + 3 = 7"`
}

type solveResponse struct {
	Status string `json:"status" example:"success"`
	Answer string `json:"answer" example:"x = 2"`
}

// Solve answers a question with a single JSON body.
//
// @Summary      Solve a math question
// @Tags         solve
// @Accept       json
// @Produce      json
// @Param        body  body      solveRequest  true  "Question"
// @Success      200   {object}  solveResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /api/solve [post]
func (h *SolveHandler) Solve(c echo.Context) error {
	started := time.Now()
	defer func() {
		metrics.SolveDuration.WithLabelValues(modeBuffered).Observe(time.Since(started).Seconds())
	}()

	question, err := bindQuestion(c)
	if err != nil {
		metrics.SolveRequestsTotal.WithLabelValues(modeBuffered, "rejected").Inc()
		return h.fail(c, modeBuffered, err)
	}

	answer, err := h.solver.Solve(c.Request().Context(), question)
	if err != nil {
		metrics.SolveRequestsTotal.WithLabelValues(modeBuffered, "failed").Inc()
		recordUpstream(err, "buffered")
		return h.fail(c, modeBuffered, err)
	}

	metrics.SolveRequestsTotal.WithLabelValues(modeBuffered, "succeeded").Inc()
	return c.JSON(http.StatusOK, solveResponse{Status: statusSuccess, Answer: answer})
}

// Stream answers a question as a server-sent event stream. Input and
// stream-open failures are returned as plain JSON before any stream header
// is written.
//
// @Summary      Solve a math question as an event stream
// @Description  Frames are `data: <json>\n\n` with status start, chunk, done or error.
// @Tags         solve
// @Accept       json
// @Produce      text/event-stream
// @Param        question  query     string        false  "Question (GET)"
// @Param        body      body      solveRequest  false  "Question (POST)"
// @Success      200       {string}  string        "event stream"
// @Failure      400       {object}  ErrorResponse
// @Failure      401       {object}  ErrorResponse
// @Failure      500       {object}  ErrorResponse
// @Router       /api/solve/stream [get]
// @Router       /api/solve/stream [post]
func (h *SolveHandler) Stream(c echo.Context) error {
	started := time.Now()
	defer func() {
		metrics.SolveDuration.WithLabelValues(modeStream).Observe(time.Since(started).Seconds())
	}()

	question, err := bindQuestion(c)
	if err != nil {
		metrics.SolveRequestsTotal.WithLabelValues(modeStream, "rejected").Inc()
		return h.fail(c, modeStream, err)
	}

	ctx := c.Request().Context()
	stream, err := h.solver.SolveStream(ctx, question)
	if err != nil {
		metrics.SolveRequestsTotal.WithLabelValues(modeStream, "failed").Inc()
		recordUpstream(err, "stream_open")
		return h.fail(c, modeStream, err)
	}
	defer stream.Close()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	w := commitEventStream(c.Response())
	log := h.log.With().Str("request_id", requestID(c)).Logger()

	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// caller went away; headers are already sent so there is nothing to report
			metrics.SolveRequestsTotal.WithLabelValues(modeStream, "abandoned").Inc()
			log.Debug().Err(err).Msg("event stream abandoned")
			return nil
		}

		if err := w.Write(ev); err != nil {
			metrics.SolveRequestsTotal.WithLabelValues(modeStream, "abandoned").Inc()
			log.Debug().Err(err).Msg("event stream write failed")
			return nil
		}

		switch ev.Kind {
		case domain.EventChunk:
			metrics.StreamChunksTotal.Inc()
		case domain.EventDone:
			metrics.SolveRequestsTotal.WithLabelValues(modeStream, "completed").Inc()
			return nil
		case domain.EventError:
			metrics.SolveRequestsTotal.WithLabelValues(modeStream, "relayed_error").Inc()
			kind := domain.UpstreamUnknown
			var cause error
			if ev.Failure != nil {
				kind, cause = ev.Failure.Kind, ev.Failure
			}
			metrics.UpstreamErrorsTotal.WithLabelValues(kind.String(), "mid_stream").Inc()
			log.Warn().Err(cause).Str("kind", kind.String()).Msg("upstream failed mid-stream")
			return nil
		}
	}
}

// bindQuestion reads the question from the JSON body or, for GET, the query
// string. Anything other than a non-blank string is domain.ErrEmptyQuestion.
func bindQuestion(c echo.Context) (string, error) {
	var req solveRequest
	if err := c.Bind(&req); err != nil {
		return "", domain.ErrEmptyQuestion
	}
	if err := c.Validate(&req); err != nil {
		return "", domain.ErrEmptyQuestion
	}
	return req.Question, nil
}

func (h *SolveHandler) fail(c echo.Context, mode string, err error) error {
	code, msg, known := ResolveError(err)
	if !known {
		h.log.Error().Err(err).Str("mode", mode).Str("request_id", requestID(c)).Msg("solve request failed")
	}
	return c.JSON(code, NewErrorResponse(msg))
}

func recordUpstream(err error, phase string) {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		metrics.UpstreamErrorsTotal.WithLabelValues(ue.Kind.String(), phase).Inc()
	}
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
