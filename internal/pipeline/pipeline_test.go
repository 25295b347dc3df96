package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/extract"
	"github.com/kyleking/current/internal/llm"
	"github.com/kyleking/current/internal/logging"
	"github.com/kyleking/current/internal/prompt"
	"github.com/kyleking/current/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}

	return kinds
}

func newPipeline(t *testing.T, gen llm.Generator, opts ...Option) (*Pipeline, *recorder) {
	t.Helper()

	rec := &recorder{}
	synth := prompt.NewSynthesizer(testutil.NewShopSchema(t), prompt.DefaultParams())
	opts = append([]Option{WithListener(rec.listen), WithLogger(logging.Nop())}, opts...)

	return New(synth, gen, opts...), rec
}

func TestComplete_Continuation(t *testing.T) {
	gen := testutil.NewMockGenerator(testutil.WithText("```sql\nselect name from users WHERE id = 1\n```"))
	p, rec := newPipeline(t, gen)

	doc := "SELECT name FROM users"
	result := p.Complete(context.Background(), doc, len(doc))

	require.NoError(t, result.Err)
	assert.Equal(t, "WHERE id = 1", result.Suggestion)
	assert.Equal(t, extract.Continuation, result.Mode)
	assert.Equal(t, doc, result.Query)
	assert.Equal(t, []EventKind{EventStarted, EventCompleted}, rec.kinds())

	req, ok := gen.LastRequest()
	require.True(t, ok)
	assert.Contains(t, req.PromptText, "users: id, name")
	assert.Contains(t, req.PromptText, "orders: id, user_id, total")
	assert.Contains(t, req.PromptText, doc)
	assert.Equal(t, prompt.DefaultParams(), req.Params)
}

func TestComplete_NaturalLanguage(t *testing.T) {
	gen := testutil.NewMockGenerator(testutil.WithText("SELECT * FROM users WHERE age > 18;"))
	p, _ := newPipeline(t, gen)

	doc := "SELECT 1;\n" + testutil.TestInstruction + "\nignored after cursor"
	result := p.Complete(context.Background(), doc, len("SELECT 1;\n"+testutil.TestInstruction))

	require.NoError(t, result.Err)
	assert.Equal(t, extract.NaturalLanguage, result.Mode)
	assert.Equal(t, "all users over 18", result.Query)
	assert.Equal(t, "SELECT * FROM users WHERE age > 18;", result.Suggestion)

	req, _ := gen.LastRequest()
	assert.Contains(t, req.PromptText, "query generator")
	assert.NotContains(t, req.PromptText, "ignored after cursor")
}

func TestComplete_CustomMarker(t *testing.T) {
	gen := testutil.NewMockGenerator(testutil.WithText("SELECT count(*) FROM orders"))
	p, _ := newPipeline(t, gen, WithMarker("-- ask:"))

	result := p.Complete(context.Background(), "-- ASK: how many orders", 100)

	assert.Equal(t, extract.NaturalLanguage, result.Mode)
	assert.Equal(t, "how many orders", result.Query)
}

func TestComplete_Failures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind EventKind
	}{
		{name: "auth missing", err: errors.NewAuthMissingError(), wantKind: EventFailed},
		{name: "network", err: errors.NewNetworkError(fmt.Errorf("connection refused"), false), wantKind: EventFailed},
		{name: "timeout", err: errors.NewNetworkError(context.DeadlineExceeded, true), wantKind: EventFailed},
		{name: "remote", err: errors.NewRemoteError(503, "unavailable"), wantKind: EventFailed},
		{name: "malformed", err: errors.NewMalformedResponseError(fmt.Errorf("bad json")), wantKind: EventEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newPipeline(t, testutil.NewMockGenerator(testutil.WithError(tt.err)))

			result := p.Complete(context.Background(), testutil.TestContinuationQuery, 100)

			assert.Empty(t, result.Suggestion)
			assert.ErrorIs(t, result.Err, tt.err)
			assert.Equal(t, []EventKind{EventStarted, tt.wantKind}, rec.kinds())
		})
	}
}

func TestComplete_EmptyResponses(t *testing.T) {
	responses := map[string]*llm.Response{
		"no candidates": testutil.NewEmptyResponse(),
		"nil response":  nil,
		"only fences":   testutil.NewResponse("```sql\n```"),
		"echo of query": testutil.NewResponse(testutil.TestContinuationQuery),
	}

	for name, resp := range responses {
		t.Run(name, func(t *testing.T) {
			p, rec := newPipeline(t, testutil.NewMockGenerator(testutil.WithResponse(resp)))

			result := p.Complete(context.Background(), testutil.TestContinuationQuery, 100)

			assert.NoError(t, result.Err)
			assert.Empty(t, result.Suggestion)
			assert.Equal(t, []EventKind{EventStarted, EventEmpty}, rec.kinds())
		})
	}
}

func TestComplete_AuthMissingWithRealClient(t *testing.T) {
	cfg := config.DefaultConfig().Gemini
	cfg.APIKey = ""

	p, _ := newPipeline(t, llm.NewClient(cfg))
	result := p.Complete(context.Background(), "SELECT", 6)

	assert.Empty(t, result.Suggestion)
	assert.True(t, errors.IsType(result.Err, errors.ErrTypeAuthMissing))
}

func TestComplete_Timeout(t *testing.T) {
	gen := testutil.NewMockGenerator(testutil.WithText("never"), testutil.WithDelay(testutil.ShortTestTimeout))
	p, rec := newPipeline(t, gen, WithTimeout(20*time.Millisecond))

	start := time.Now()
	result := p.Complete(context.Background(), "SELECT", 6)

	assert.Less(t, time.Since(start), testutil.ShortTestTimeout)
	assert.Empty(t, result.Suggestion)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.Equal(t, []EventKind{EventStarted, EventFailed}, rec.kinds())
}

func TestComplete_RecoversPanics(t *testing.T) {
	gen := testutil.NewMockGenerator(testutil.WithResponder(func(prompt.GenerationRequest) (*llm.Response, error) {
		panic("boom")
	}))
	p, rec := newPipeline(t, gen)

	result := p.Complete(context.Background(), "SELECT", 6)

	assert.Empty(t, result.Suggestion)
	assert.True(t, errors.IsType(result.Err, errors.ErrTypeInternal))
	assert.Equal(t, []EventKind{EventStarted, EventFailed}, rec.kinds())
}

func TestComplete_EventsCarryRequestID(t *testing.T) {
	p, rec := newPipeline(t, testutil.NewMockGenerator(testutil.WithText("x")))

	result := p.Complete(context.Background(), "SELECT", 6)

	_, err := uuid.Parse(result.RequestID)
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	for _, e := range rec.events {
		assert.Equal(t, result.RequestID, e.RequestID)
		assert.Equal(t, extract.Continuation, e.Mode)
	}
	assert.Positive(t, rec.events[1].Duration)
}

func TestComplete_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gen := testutil.NewMockGenerator(testutil.WithError(errors.NewRemoteError(500, "oops")))
	p, _ := newPipeline(t, gen, WithLogger(logging.FromZap(zap.New(core))))

	result := p.Complete(context.Background(), "SELECT", 6)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Completion failed", warnings[0].Message)
	assert.Equal(t, result.RequestID, warnings[0].ContextMap()["request_id"])
	assert.Equal(t, "remote", warnings[0].ContextMap()["error_type"])
	assert.Equal(t, false, warnings[0].ContextMap()["timeout"])
}

func TestComplete_LogsTimeouts(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "client deadline", err: errors.NewNetworkError(context.DeadlineExceeded, true)},
		{name: "context deadline", err: fmt.Errorf("generate: %w", context.DeadlineExceeded)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			gen := testutil.NewMockGenerator(testutil.WithError(tt.err))
			p, _ := newPipeline(t, gen, WithLogger(logging.FromZap(zap.New(core))))

			p.Complete(context.Background(), "SELECT", 6)

			require.Equal(t, 1, logs.Len())
			assert.Equal(t, true, logs.All()[0].ContextMap()["timeout"])
		})
	}
}

func TestComplete_UsesCallerRequestID(t *testing.T) {
	p, rec := newPipeline(t, testutil.NewMockGenerator(testutil.WithText("x")))

	ctx := WithRequestID(context.Background(), "editor-7")
	result := p.Complete(ctx, "SELECT", 6)

	assert.Equal(t, "editor-7", result.RequestID)
	for _, e := range rec.events {
		assert.Equal(t, "editor-7", e.RequestID)
	}

	// an empty ID falls back to a generated one
	result = p.Complete(WithRequestID(context.Background(), ""), "SELECT", 6)
	_, err := uuid.Parse(result.RequestID)
	assert.NoError(t, err)
}

func TestComplete_Concurrent(t *testing.T) {
	gen := testutil.NewMockGenerator(testutil.WithResponder(func(req prompt.GenerationRequest) (*llm.Response, error) {
		lines := strings.Split(req.PromptText, "\n")
		query := lines[len(lines)-1]

		return testutil.NewResponse(query + " -- " + query), nil
	}), testutil.WithDelay(time.Millisecond))
	p, rec := newPipeline(t, gen)

	results := make([]Result, testutil.TestConcurrency)
	testutil.RunConcurrent(t, testutil.TestConcurrency, func(id int) {
		doc := fmt.Sprintf("SELECT c%d FROM t", id)
		results[id] = p.Complete(context.Background(), doc, len(doc))
	})

	ids := make(map[string]bool)
	for id, result := range results {
		assert.Equal(t, fmt.Sprintf("-- SELECT c%d FROM t", id), result.Suggestion)
		ids[result.RequestID] = true
	}

	assert.Len(t, ids, testutil.TestConcurrency)
	assert.Equal(t, testutil.TestConcurrency, gen.CallCount())
	assert.Len(t, rec.kinds(), 2*testutil.TestConcurrency)
}
