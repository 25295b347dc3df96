// Package pipeline runs one completion request end to end: extract the
// context, synthesize a prompt, call the generator and sanitize the output.
//
// A Pipeline holds no per-request state and is safe for concurrent use.
// Concurrent completions finish in no particular order; discarding a result
// whose cursor has since moved is the caller's job.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/extract"
	"github.com/kyleking/current/internal/llm"
	"github.com/kyleking/current/internal/logging"
	"github.com/kyleking/current/internal/prompt"
	"github.com/kyleking/current/internal/sanitize"
)

// Synthesizer builds a generation request from extracted context
type Synthesizer interface {
	Synthesize(ex extract.Result) prompt.GenerationRequest
}

// EventKind describes where a request ended up
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventCompleted EventKind = "completed"
	EventEmpty     EventKind = "empty"
	EventFailed    EventKind = "failed"
)

// Event is reported to the listener when a request starts and when it ends
type Event struct {
	RequestID string
	Kind      EventKind
	Mode      extract.Mode
	Err       error
	Duration  time.Duration
}

// Listener receives events synchronously on the request goroutine, so it
// must not block.
type Listener func(Event)

// Result is what one completion produced. Suggestion is "" whenever nothing
// usable came back; Err then says why, for diagnostics only.
type Result struct {
	RequestID  string       `json:"request_id"`
	Mode       extract.Mode `json:"mode"`
	Query      string       `json:"query"`
	Suggestion string       `json:"suggestion"`
	Err        error        `json:"-"`
}

// Pipeline wires the completion stages together
type Pipeline struct {
	extractor *extract.Extractor
	synth     Synthesizer
	gen       llm.Generator
	listener  Listener
	logger    *logging.Logger
	timeout   time.Duration
}

// Option is a functional option for configuring a Pipeline
type Option func(*Pipeline)

// WithMarker sets the natural-language marker
func WithMarker(marker string) Option {
	return func(p *Pipeline) {
		p.extractor = extract.New(marker)
	}
}

// WithListener registers a listener for request events
func WithListener(l Listener) Option {
	return func(p *Pipeline) {
		p.listener = l
	}
}

// WithLogger replaces the global logger
func WithLogger(logger *logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithTimeout bounds each generator call in addition to the caller's context
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

type requestIDKey struct{}

// WithRequestID makes Complete use id instead of generating one, so callers
// can correlate their own logs with the completion.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}

	return uuid.NewString()
}

// New creates a pipeline
func New(synth Synthesizer, gen llm.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: extract.New(extract.DefaultMarker),
		synth:     synth,
		gen:       gen,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logging.GetLogger()
	}

	return p
}

// Complete never returns an error: every failure becomes an empty suggestion
// with Result.Err set.
func (p *Pipeline) Complete(ctx context.Context, document string, cursor int) (result Result) {
	start := time.Now()
	ex := p.extractor.Extract(document, cursor)

	result = Result{
		RequestID: requestID(ctx),
		Mode:      ex.Mode,
		Query:     ex.Query,
	}

	logger := p.logger.WithFields(map[string]interface{}{
		"request_id": result.RequestID,
		"mode":       ex.Mode.String(),
	})

	p.emit(Event{RequestID: result.RequestID, Kind: EventStarted, Mode: ex.Mode})

	defer func() {
		if r := recover(); r != nil {
			result.Suggestion = ""
			result.Err = errors.New(errors.ErrTypeInternal, fmt.Sprintf("completion panicked: %v", r))
		}

		p.finish(logger, result, time.Since(start))
	}()

	req := p.synth.Synthesize(ex)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.gen.Generate(ctx, req)
	if err != nil {
		result.Err = err
		return result
	}

	text, ok := resp.Text()
	if !ok {
		logger.Debug("Response had no candidate text")
		return result
	}

	result.Suggestion = sanitize.Sanitize(text, ex.Query)

	return result
}

func (p *Pipeline) finish(logger *logging.Logger, result Result, duration time.Duration) {
	kind := EventCompleted

	switch {
	case result.Err != nil && errors.IsType(result.Err, errors.ErrTypeMalformedResponse):
		kind = EventEmpty
		logger.WithError(result.Err).Debug("Malformed response treated as no suggestion")
	case result.Err != nil:
		kind = EventFailed
		logger.WithError(result.Err).WithFields(map[string]interface{}{
			"error_type": string(errors.GetType(result.Err)),
			"timeout":    errors.IsTimeout(result.Err) || errors.Is(result.Err, context.DeadlineExceeded),
		}).Warn("Completion failed")
	case result.Suggestion == "":
		kind = EventEmpty
	}

	logger.WithFields(map[string]interface{}{
		"outcome":  string(kind),
		"duration": duration,
	}).Debug("Completion finished")

	p.emit(Event{
		RequestID: result.RequestID,
		Kind:      kind,
		Mode:      result.Mode,
		Err:       result.Err,
		Duration:  duration,
	})
}

func (p *Pipeline) emit(e Event) {
	if p.listener != nil {
		p.listener(e)
	}
}
