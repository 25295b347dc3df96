package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/logging"
)

// BuildInfo is stamped into the binary at release time
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type configKey struct{}

// withConfig stores a resolved configuration in ctx. Commands use it instead
// of loading from disk, which lets tests inject their own.
func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func getConfigFromContext(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(configKey{}).(*config.Config)
	return cfg
}

// overrideFlags are the flag names forwarded to config.LoadConfigWithOverrides
var overrideFlags = []string{"schema", "model", "backend", "timeout", "log-level", "marker", "addr"}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "schema",
			Aliases: []string{"s"},
			Usage:   "path to the schema document (yaml, json or toml)",
		},
		&cli.StringFlag{
			Name:    "model",
			Aliases: []string{"m"},
			Usage:   "Gemini model ID",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "completion backend: rest or genai",
		},
		&cli.StringFlag{
			Name:  "timeout",
			Usage: "request timeout, e.g. 10s",
		},
		&cli.StringFlag{
			Name:  "marker",
			Usage: "token that switches to natural-language mode",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		&cli.BoolFlag{
			Name:  "allow-empty-schema",
			Usage: "continue with an empty schema when the schema document cannot be read",
		},
	}
}

// NewRootCommand builds the command tree
func NewRootCommand(info BuildInfo) *cli.Command {
	return &cli.Command{
		Name:    "current",
		Usage:   "Schema-aware SQL completion backed by Gemini",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date),
		Description: `current turns the text before an editor cursor into an SQL suggestion.

Text after the last "--sql:" marker is treated as a natural-language request
for a full query; anything else is completed as a partially written query.`,
		Flags: globalFlags(),
		Commands: []*cli.Command{
			CompleteCommand(),
			ServeCommand(),
			SchemaCommand(),
			ModelsCommand(),
			ConfigCommand(),
		},
	}
}

// Execute runs the CLI with os.Args
func Execute(info BuildInfo) error {
	err := NewRootCommand(info).Run(context.Background(), os.Args)
	if err != nil {
		printError(os.Stderr, err)
	}

	return err
}

// loadConfig resolves configuration for a command and initializes logging
func loadConfig(ctx context.Context, cmd *cli.Command) (*config.Config, error) {
	if cfg := getConfigFromContext(ctx); cfg != nil {
		return cfg, nil
	}

	overrides := make(map[string]interface{})
	for _, name := range overrideFlags {
		if cmd.IsSet(name) {
			overrides[name] = cmd.String(name)
		}
	}

	if cmd.IsSet("allow-empty-schema") {
		overrides["allow-empty-schema"] = cmd.Bool("allow-empty-schema")
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		logging.SetupFallbackLogger()
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration")
	}

	cfg.ExpandAllPaths()

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
		logging.Warnf("Failed to initialize logger, using fallback: %v", err)
	}

	return cfg, nil
}

// printError writes err and any suggestions attached to it
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	var e *errors.Error
	if errors.As(err, &e) && len(e.Suggestions) > 0 {
		fmt.Fprintln(w, "\nSuggestions:")
		for _, s := range e.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}
