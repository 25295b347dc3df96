package testutil

import (
	"testing"

	"github.com/kyleking/current/internal/llm"
	"github.com/kyleking/current/internal/schema"
)

// TableOption is a functional option for configuring a test schema
type TableOption func(*[]schema.Table)

// WithTable appends a table with the given columns
func WithTable(name string, columns ...string) TableOption {
	return func(tables *[]schema.Table) {
		*tables = append(*tables, schema.Table{Name: name, Columns: columns})
	}
}

// NewSchema builds a descriptor from options and fails the test on error
func NewSchema(t testing.TB, opts ...TableOption) *schema.Descriptor {
	t.Helper()

	var tables []schema.Table
	for _, opt := range opts {
		opt(&tables)
	}

	d, err := schema.New(tables)
	if err != nil {
		t.Fatalf("invalid test schema: %v", err)
	}

	return d
}

// NewShopSchema returns the users/orders schema used across tests
func NewShopSchema(t testing.TB) *schema.Descriptor {
	t.Helper()

	return NewSchema(t,
		WithTable("users", "id", "name"),
		WithTable("orders", "id", "user_id", "total"),
	)
}

// NewResponse builds a one-candidate response with text
func NewResponse(text string) *llm.Response {
	return &llm.Response{
		Candidates: []llm.Candidate{{
			Content:      &llm.Content{Role: "model", Parts: []llm.Part{{Text: text}}},
			FinishReason: "STOP",
		}},
	}
}

// NewEmptyResponse builds a response with no candidates
func NewEmptyResponse() *llm.Response {
	return &llm.Response{}
}
