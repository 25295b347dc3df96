package formatter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/llm"
	"github.com/kyleking/current/internal/pipeline"
	"github.com/kyleking/current/internal/schema"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a user-supplied format name
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (must be text or json)", s)
	}
}

// Formatter renders command output
type Formatter struct{}

// NewFormatter creates a new formatter instance
func NewFormatter() *Formatter {
	return &Formatter{}
}

type resultJSON struct {
	pipeline.Result
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// FormatResult renders a completion. Text output is the bare suggestion so it
// can be piped straight into an editor buffer.
func (f *Formatter) FormatResult(result pipeline.Result, format OutputFormat) (string, error) {
	if format != FormatJSON {
		return result.Suggestion, nil
	}

	out := resultJSON{Result: result}
	if result.Err != nil {
		out.Error = result.Err.Error()
		out.ErrorType = string(errors.GetType(result.Err))
	}

	return marshal(out)
}

// FormatModels renders a model listing as an aligned table or JSON
func (f *Formatter) FormatModels(models []llm.Model, format OutputFormat) (string, error) {
	if format == FormatJSON {
		if models == nil {
			models = []llm.Model{}
		}

		return marshal(models)
	}

	if len(models) == 0 {
		return "No models found", nil
	}

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "NAME\tDISPLAY NAME\tINPUT\tOUTPUT\tMETHODS")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.Name,
			orDash(m.DisplayName),
			formatLimit(m.InputTokenLimit),
			formatLimit(m.OutputTokenLimit),
			orDash(strings.Join(m.SupportedGenerationMethods, ", ")),
		)
	}

	if err := tw.Flush(); err != nil {
		return "", err
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}

type schemaJSON struct {
	Formatted string         `json:"formatted"`
	Tables    []schema.Table `json:"tables"`
}

// FormatSchema renders the descriptor the way prompts see it, or as JSON
func (f *Formatter) FormatSchema(d *schema.Descriptor, format OutputFormat) (string, error) {
	if format == FormatJSON {
		tables := d.Tables()
		if tables == nil {
			tables = []schema.Table{}
		}

		return marshal(schemaJSON{Formatted: d.Format(), Tables: tables})
	}

	if d.Len() == 0 {
		return "(empty schema)", nil
	}

	return d.Format(), nil
}

func marshal(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal output: %w", err)
	}

	return string(data), nil
}

// formatLimit formats a token limit, returning "-" when unknown
func formatLimit(n int) string {
	if n <= 0 {
		return "-"
	}

	return strconv.Itoa(n)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
