package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/formatter"
	"github.com/kyleking/current/internal/llm"
)

type completeOptions struct {
	File   string
	Cursor int
	JSON   bool
}

func CompleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "complete",
		Usage: "Suggest SQL for the text before the cursor",
		Description: `Reads a document from --file or stdin and prints a suggestion for the text
before the cursor. The cursor is a character offset and defaults to the end of
the document. An empty suggestion is not an error.

Examples:
  echo 'SELECT name FROM use' | current complete
  current complete --file query.sql --cursor 42 --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "read the document from `FILE` instead of stdin",
			},
			&cli.IntFlag{
				Name:    "cursor",
				Aliases: []string{"c"},
				Usage:   "cursor position in characters (default: end of document)",
				Value:   -1,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the full result as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}

			gen, err := llm.NewGenerator(ctx, cfg.Gemini)
			if err != nil {
				return err
			}

			opts := completeOptions{
				File:   cmd.String("file"),
				Cursor: int(cmd.Int("cursor")),
				JSON:   cmd.Bool("json"),
			}

			return runComplete(ctx, cfg, gen, os.Stdin, os.Stdout, opts)
		},
	}
}

func runComplete(
	ctx context.Context,
	cfg *config.Config,
	gen llm.Generator,
	stdin io.Reader,
	stdout io.Writer,
	opts completeOptions,
) error {
	desc, err := loadSchema(cfg.Schema)
	if err != nil {
		return err
	}

	document, err := readDocument(opts.File, stdin)
	if err != nil {
		return err
	}

	cursor := opts.Cursor
	if cursor < 0 {
		cursor = utf8.RuneCountInString(document)
	}

	stop := startSpinner("Completing...")
	result := newPipeline(cfg, desc, gen).Complete(ctx, document, cursor)
	stop()

	format := formatter.FormatText
	if opts.JSON {
		format = formatter.FormatJSON
	}

	out, err := formatter.NewFormatter().FormatResult(result, format)
	if err != nil {
		return err
	}

	if out != "" {
		fmt.Fprintln(stdout, out)
	}

	return nil
}

func readDocument(path string, stdin io.Reader) (string, error) {
	if path != "" && path != "-" {
		data, err := os.ReadFile(config.ExpandPath(path))
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrTypeValidation, "failed to read document %s", path)
		}

		return string(data), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeValidation, "failed to read document from stdin")
	}

	return string(data), nil
}
