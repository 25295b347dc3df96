// Package prompt turns extracted editor context and the schema into a
// generation request.
package prompt

import (
	"embed"
	"strings"
	"text/template"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/extract"
	"github.com/kyleking/current/internal/schema"
)

// RoleUser is the only role this package emits
const RoleUser = "user"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Params are the sampling parameters attached to every request
type Params struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

// DefaultParams returns temperature 0.7, 512 output tokens, top-p 0.95, top-k 40
func DefaultParams() Params {
	return Params{
		Temperature:     0.7,
		MaxOutputTokens: 512,
		TopP:            0.95,
		TopK:            40,
	}
}

// ParamsFromConfig copies the configured sampling parameters
func ParamsFromConfig(cfg config.GenerationConfig) Params {
	return Params{
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		TopP:            cfg.TopP,
		TopK:            cfg.TopK,
	}
}

// GenerationRequest is immutable once built and sent as-is to a generator
type GenerationRequest struct {
	PromptText string
	Role       string
	Params     Params
}

type templateData struct {
	Schema string
	Query  string
}

// Synthesize builds the request for ex. The query and schema are embedded
// verbatim with no escaping.
func Synthesize(ex extract.Result, schemaText string, params Params) GenerationRequest {
	name := "continuation.tmpl"
	if ex.Mode == extract.NaturalLanguage {
		name = "natural_language.tmpl"
	}

	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, templateData{Schema: schemaText, Query: ex.Query}); err != nil {
		panic("prompt: " + err.Error())
	}

	return GenerationRequest{
		PromptText: strings.TrimRight(sb.String(), " \t\n"),
		Role:       RoleUser,
		Params:     params,
	}
}

// Synthesizer captures the formatted schema once so each request only renders
// a template.
type Synthesizer struct {
	schemaText string
	params     Params
}

// NewSynthesizer formats desc once; a nil descriptor behaves like an empty one
func NewSynthesizer(desc *schema.Descriptor, params Params) *Synthesizer {
	return &Synthesizer{schemaText: desc.Format(), params: params}
}

// Synthesize builds the request for ex using the captured schema
func (s *Synthesizer) Synthesize(ex extract.Result) GenerationRequest {
	return Synthesize(ex, s.schemaText, s.params)
}

// Params returns the configured sampling parameters
func (s *Synthesizer) Params() Params {
	return s.params
}
