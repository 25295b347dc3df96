package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/llm"
	"github.com/kyleking/current/internal/logging"
	"github.com/kyleking/current/internal/monitor"
	"github.com/kyleking/current/internal/pipeline"
	"github.com/kyleking/current/internal/server"
)

const monitorInterval = 30 * time.Second

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve completions to editors over local HTTP",
		Description: `Starts an HTTP server with the endpoints:

  POST /v1/complete  {"document": "...", "cursor": 12}
  GET  /v1/schema
  GET  /v1/stats
  GET  /healthz

The server stops gracefully on SIGINT or SIGTERM.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, e.g. 127.0.0.1:7878",
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

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, gen)
		},
	}
}

// runServe blocks until ctx is canceled
func runServe(ctx context.Context, cfg *config.Config, gen llm.Backend) error {
	desc, err := loadSchema(cfg.Schema)
	if err != nil {
		return err
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	mon := monitor.New()
	mon.Start(ctx, monitorInterval)
	defer mon.Stop()

	p := newPipeline(cfg, desc, gen, pipeline.WithListener(mon.Observe))

	srv, err := server.New(cfg.Server, p, desc,
		server.WithModel(gen.Model()),
		server.WithMonitor(mon),
	)
	if err != nil {
		return err
	}

	logging.WithFields(map[string]interface{}{
		"addr":   cfg.Server.Addr,
		"model":  gen.Model(),
		"tables": desc.Len(),
	}).Info("Starting completion server")

	err = srv.Run(ctx)

	logging.GetLogger().Info(mon.FormattedStats())

	return err
}
