package cmd

import (
	"io/fs"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/llm"
	"github.com/kyleking/current/internal/logging"
	"github.com/kyleking/current/internal/pipeline"
	"github.com/kyleking/current/internal/prompt"
	"github.com/kyleking/current/internal/schema"
)

// loadSchema reads the configured schema document. With AllowEmpty set, an
// unreadable document degrades to an empty schema instead of failing.
func loadSchema(cfg config.SchemaConfig) (*schema.Descriptor, error) {
	desc, err := schema.Load(config.ExpandPath(cfg.Path))
	if err == nil {
		logging.WithFields(map[string]interface{}{
			"path":   cfg.Path,
			"tables": desc.Len(),
		}).Debug("Schema loaded")

		return desc, nil
	}

	if cfg.AllowEmpty {
		logging.GetLogger().WithError(err).Warn("Schema unavailable, continuing with an empty schema")
		return schema.Empty(), nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		var e *errors.Error
		if errors.As(err, &e) {
			return nil, e.WithSuggestion("Create the file, dump one with 'current schema dump', or pass --allow-empty-schema")
		}
	}

	return nil, err
}

// newPipeline wires the configured stages around gen
func newPipeline(cfg *config.Config, desc *schema.Descriptor, gen llm.Generator, opts ...pipeline.Option) *pipeline.Pipeline {
	synth := prompt.NewSynthesizer(desc, prompt.ParamsFromConfig(cfg.Generation))

	opts = append([]pipeline.Option{
		pipeline.WithMarker(cfg.Completion.Marker),
		pipeline.WithTimeout(cfg.Gemini.TimeoutDuration()),
	}, opts...)

	return pipeline.New(synth, gen, opts...)
}

// startSpinner shows progress on stderr when it is a terminal. The returned
// func stops it and is always safe to call.
func startSpinner(suffix string) func() {
	fd := os.Stderr.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()

	return s.Stop
}
