package llm

import (
	"context"

	"github.com/kyleking/current/internal/prompt"
)

// Generator sends one generation request and returns the raw payload.
// Implementations make exactly one network call per Generate and never retry.
type Generator interface {
	Generate(ctx context.Context, req prompt.GenerationRequest) (*Response, error)
}

// ModelLister lists the models available to the configured credential
type ModelLister interface {
	ListModels(ctx context.Context) ([]Model, error)
}

// Backend constants for the two generator implementations
const (
	BackendREST  = "rest"
	BackendGenAI = "genai"
)

// Response is the subset of a generateContent payload the pipeline reads
type Response struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one generated alternative
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// Content is a role-tagged list of parts
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one piece of content; only text parts are produced here
type Part struct {
	Text string `json:"text"`
}

// Model describes one entry of the model listing
type Model struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName,omitempty"`
	Description                string   `json:"description,omitempty"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods,omitempty"`
	InputTokenLimit            int      `json:"inputTokenLimit,omitempty"`
	OutputTokenLimit           int      `json:"outputTokenLimit,omitempty"`
}

// FirstCandidate returns the first candidate, if any
func (r *Response) FirstCandidate() (Candidate, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return Candidate{}, false
	}

	return r.Candidates[0], true
}

// FirstPart returns the first part of the candidate's content, if any
func (c Candidate) FirstPart() (Part, bool) {
	if c.Content == nil || len(c.Content.Parts) == 0 {
		return Part{}, false
	}

	return c.Content.Parts[0], true
}

// Text walks candidates[0].content.parts[0].text. A missing step yields
// ("", false), which callers treat as an empty suggestion.
func (r *Response) Text() (string, bool) {
	candidate, ok := r.FirstCandidate()
	if !ok {
		return "", false
	}

	part, ok := candidate.FirstPart()
	if !ok {
		return "", false
	}

	return part.Text, true
}
