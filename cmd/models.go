package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/current/internal/formatter"
	"github.com/kyleking/current/internal/llm"
)

func ModelsCommand() *cli.Command {
	return &cli.Command{
		Name:        "models",
		Usage:       "List the models available to the configured API key",
		Description: `Lists models from the configured backend with their token limits and supported generation methods.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print models as JSON",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "include models that cannot generate content",
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

			format := formatter.FormatText
			if cmd.Bool("json") {
				format = formatter.FormatJSON
			}

			return runModels(ctx, gen, os.Stdout, format, cmd.Bool("all"))
		},
	}
}

func runModels(ctx context.Context, lister llm.ModelLister, w io.Writer, format formatter.OutputFormat, all bool) error {
	stop := startSpinner("Fetching models...")
	models, err := lister.ListModels(ctx)
	stop()

	if err != nil {
		return err
	}

	if !all {
		models = generativeModels(models)
	}

	sort.SliceStable(models, func(i, j int) bool {
		return models[i].Name < models[j].Name
	})

	out, err := formatter.NewFormatter().FormatModels(models, format)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, out)

	return nil
}

// generativeModels keeps models that support generateContent
func generativeModels(models []llm.Model) []llm.Model {
	var out []llm.Model

	for _, m := range models {
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				out = append(out, m)
				break
			}
		}
	}

	return out
}
