// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/carepipe/ai"
	aiopenai "github.com/poiesic/carepipe/ai/openai"
	auditbadger "github.com/poiesic/carepipe/audit/badger"
	"github.com/poiesic/carepipe/config"
	"github.com/poiesic/carepipe/pipeline"
	vsbadger "github.com/poiesic/carepipe/vectorstore/badger"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "carepipe",
		Usage: "Healthcare data pipeline: ingest, de-identify, chunk, embed, store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run a pipeline against a configuration file",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to pipeline configuration file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Pipeline name used in logs and the audit trail",
						Value: "default",
					},
					&cli.BoolFlag{
						Name:  "concurrent",
						Usage: "Run stages as concurrent workers connected by queues",
					},
					&cli.IntFlag{
						Name:  "queue-size",
						Usage: "Inter-stage queue capacity for concurrent runs",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Base path for exported results",
					},
					&cli.BoolFlag{
						Name:  "summary",
						Usage: "Log an execution summary after the run",
					},
					&cli.BoolFlag{
						Name:  "print-model",
						Usage: "Print the final result as JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Indent JSON output",
						Value: true,
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Verbose summary output",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Abort the run after this duration (0 = no limit)",
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Query the vector store for chunks similar to a text",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to pipeline configuration file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Query text",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "namespace",
						Usage: "Namespace to search (defaults to <prefix>-clinical)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
					&cli.Float64Flag{
						Name:  "min-similarity",
						Usage: "Minimum similarity score",
						Value: 0.5,
					},
				},
			},
			{
				Name:   "audit",
				Usage:  "Inspect the audit trail",
				Action: auditCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to the audit database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show events for this pipeline run instead of listing runs",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := pipeline.NewRunner()
	result, err := runner.Run(ctx, c.String("name"), cfg, pipeline.RunOptions{
		Concurrent:  c.Bool("concurrent"),
		QueueSize:   c.Int("queue-size"),
		OutputPath:  c.String("output"),
		ShowSummary: c.Bool("summary"),
		PrintModel:  c.Bool("print-model"),
		Pretty:      c.Bool("pretty"),
		Verbose:     c.Bool("verbose"),
		Timeout:     c.Duration("timeout"),
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return cli.Exit(fmt.Sprintf("pipeline finished with %d errors", len(result.Errors)), 1)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	vsCfg := cfg.Sub("vectorstore")
	if vsCfg == nil {
		return fmt.Errorf("configuration has no vectorstore section")
	}
	if engine := config.String(vsCfg, "engine", "badger"); engine != "badger" {
		return fmt.Errorf("search supports the badger engine, got %q", engine)
	}

	store, err := vsbadger.Open(
		config.String(vsCfg, "path", ""),
		config.Bool(vsCfg, "in_memory", false),
	)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	defer store.Close()

	embCfg := cfg.Sub("embedding")
	aiCfg := ai.NewConfig(
		ai.WithHost(config.String(embCfg, "host", "http://localhost:11434")),
		ai.WithModel(config.String(embCfg, "model", "embeddinggemma")),
		ai.WithAPIKey(config.String(embCfg, "api_key", "")),
	)
	embedder, err := aiopenai.NewEmbedder(aiCfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	vector, err := embedder.EmbedText(ctx, c.String("query"))
	if err != nil {
		return fmt.Errorf("embedding query: %w", err)
	}

	namespace := c.String("namespace")
	if namespace == "" {
		namespace = config.String(vsCfg, "namespace_prefix", "carepipe") + "-clinical"
	}

	matches, err := store.Search(ctx, namespace, vector, float32(c.Float64("min-similarity")), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	for _, match := range matches {
		fmt.Printf("%.4f  %s  %s\n", match.Score, match.Chunk.ID, firstLine(match.Chunk.Content))
	}
	if len(matches) == 0 {
		fmt.Fprintln(os.Stderr, "no matches")
	}
	return nil
}

func auditCommand(c *cli.Context) error {
	repo, err := auditbadger.Open(c.String("db"), false)
	if err != nil {
		return fmt.Errorf("opening audit database: %w", err)
	}
	defer repo.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if runID := c.String("run"); runID != "" {
		events, err := repo.EventsForRun(runID)
		if err != nil {
			return err
		}
		for _, event := range events {
			if err := enc.Encode(event); err != nil {
				return err
			}
		}
		return nil
	}

	runs, err := repo.ListPipelineRuns()
	if err != nil {
		return err
	}
	for _, run := range runs {
		duration := ""
		if !run.CompletedAt.IsZero() {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Printf("%s  %-10s  %-12s  %s\n", run.ID, run.Status, duration, run.Name)
	}
	return nil
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 80 {
		text = text[:80] + "..."
	}
	return text
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
