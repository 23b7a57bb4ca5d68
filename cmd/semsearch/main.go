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
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/semsearch"
	"github.com/poiesic/semsearch/config"
	"github.com/poiesic/semsearch/core"
	"github.com/poiesic/semsearch/httpapi"
	"github.com/poiesic/semsearch/search"
)

func main() {
	app := &cli.App{
		Name:  "semsearch",
		Usage: "Resilient semantic search over the skill and technology catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "semsearch.yaml",
			},
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
				Name:   "serve",
				Usage:  "Run the HTTP API (and optionally the MCP server on stdio)",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address, overrides the configuration file",
					},
					&cli.BoolFlag{
						Name:  "mcp",
						Usage: "Also serve MCP tools on stdio",
					},
				},
			},
			{
				Name:  "index",
				Usage: "Manage the vector index",
				Subcommands: []*cli.Command{
					{
						Name:   "run",
						Usage:  "Run indexing to completion for one kind or all kinds",
						Action: indexRunCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "kind",
								Usage: "Restrict to one kind (skill or technology)",
							},
							&cli.IntFlag{
								Name:  "batch-size",
								Usage: "Records per batch (0 uses the configured default)",
							},
						},
					},
					{
						Name:   "status",
						Usage:  "Show indexing progress",
						Action: indexStatusCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "kind",
								Usage: "Restrict to one kind (skill or technology)",
							},
						},
					},
					{
						Name:   "stop",
						Usage:  "Pause the active indexing pass for a kind",
						Action: indexStopCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "kind",
								Usage:    "Kind to pause (skill or technology)",
								Required: true,
							},
						},
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a semantic search from the command line",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of results to return",
					},
					&cli.StringFlag{
						Name:  "identity",
						Usage: "Admission identity for the query",
						Value: "cli:local",
					},
				},
			},
			{
				Name:  "ratelimit",
				Usage: "Manage admission counters",
				Subcommands: []*cli.Command{
					{
						Name:      "reset",
						Usage:     "Clear the admission counters for an identity",
						ArgsUsage: "<identity>",
						Action:    rateLimitResetCommand,
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "Load the built-in development corpus into the catalog",
				Action: seedCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openEngine(c *cli.Context) (*semsearch.Engine, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	eng, err := semsearch.NewEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return eng, nil
}

func kindsFromFlag(raw string) ([]core.Kind, error) {
	if raw == "" {
		return core.AllKinds(), nil
	}
	kind, err := core.ParseKind(raw)
	if err != nil {
		return nil, err
	}
	return []core.Kind{kind}, nil
}

func serveCommand(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	eng, err := semsearch.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer eng.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.New(eng, slog.Default()).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	if c.Bool("mcp") {
		g.Go(func() error {
			mcpServer := mcp.NewServer(&mcp.Implementation{Name: "semsearch"}, nil)
			eng.RegisterMCP(mcpServer)
			slog.Info("mcp server listening on stdio")
			if err := mcpServer.Run(gctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func indexRunCommand(c *cli.Context) error {
	ctx := context.Background()

	eng, err := openEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()

	kinds, err := kindsFromFlag(c.String("kind"))
	if err != nil {
		return err
	}

	for _, kind := range kinds {
		if err := runIndexing(ctx, eng, kind, c.Int("batch-size")); err != nil {
			return err
		}
	}
	return nil
}

func runIndexing(ctx context.Context, eng *semsearch.Engine, kind core.Kind, batchSize int) error {
	var bar *progressbar.ProgressBar

	for {
		res, err := eng.TriggerIndexResume(ctx, kind, batchSize)
		if err != nil {
			return fmt.Errorf("indexing %s failed: %w", kind, err)
		}
		if res.Locked {
			return fmt.Errorf("another indexer holds the lock for %s", kind)
		}

		cp := res.Checkpoint
		if bar == nil {
			bar = progressbar.NewOptions64(cp.Total,
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(fmt.Sprintf("Indexing %s", kind)),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}
		bar.ChangeMax64(cp.Total)
		_ = bar.Set64(cp.Processed)

		switch cp.Status {
		case core.CheckpointCompleted:
			fmt.Fprintf(os.Stderr, "Indexed %d %s records (pass %d)\n", cp.Processed, kind, cp.Version)
			return nil
		case core.CheckpointPaused:
			fmt.Fprintf(os.Stderr, "Indexing %s paused at %d/%d\n", kind, cp.Processed, cp.Total)
			return nil
		}
	}
}

func indexStatusCommand(c *cli.Context) error {
	ctx := context.Background()

	eng, err := openEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()

	kinds, err := kindsFromFlag(c.String("kind"))
	if err != nil {
		return err
	}

	for _, kind := range kinds {
		cp, err := eng.IndexProgress(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to read %s progress: %w", kind, err)
		}
		if cp == nil {
			fmt.Printf("%-12s no indexing pass recorded\n", kind)
			continue
		}
		fmt.Printf("%-12s %-12s pass=%d processed=%d/%d next_offset=%d updated=%s\n",
			kind, cp.Status, cp.Version, cp.Processed, cp.Total, cp.NextOffset,
			cp.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func indexStopCommand(c *cli.Context) error {
	ctx := context.Background()

	kind, err := core.ParseKind(c.String("kind"))
	if err != nil {
		return err
	}

	eng, err := openEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.StopIndexing(ctx, kind); err != nil {
		return fmt.Errorf("failed to stop %s indexing: %w", kind, err)
	}
	fmt.Fprintf(os.Stderr, "Indexing paused for %s\n", kind)
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query argument is required")
	}

	eng, err := openEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()

	resp, err := eng.Search(ctx, search.Request{
		Query:    query,
		TopK:     c.Int("top-k"),
		Identity: c.String("identity"),
	})
	if err != nil {
		var denied *core.AdmissionError
		if errors.As(err, &denied) {
			return fmt.Errorf("rate limited: retry after %d seconds", denied.RetryAfterSeconds)
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if len(resp.Matches) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for i, m := range resp.Matches {
		fmt.Printf("%2d. [%s] %s", i+1, m.Kind, m.Name)
		if m.Category != "" {
			fmt.Printf(" (%s)", m.Category)
		}
		fmt.Printf("  score=%.3f source=%s\n", m.Score, m.Source)
		if m.Summary != "" {
			fmt.Printf("    %s\n", m.Summary)
		}
	}
	if resp.Cached {
		fmt.Fprintln(os.Stderr, "(served from cache)")
	}
	return nil
}

func rateLimitResetCommand(c *cli.Context) error {
	ctx := context.Background()

	identity := strings.TrimSpace(c.Args().First())
	if identity == "" {
		return fmt.Errorf("identity argument is required")
	}

	eng, err := openEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.ResetRateLimit(ctx, identity); err != nil {
		return fmt.Errorf("failed to reset counters: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Admission counters reset for %s\n", identity)
	return nil
}

func seedCommand(c *cli.Context) error {
	ctx := context.Background()

	eng, err := openEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()

	inserted, err := eng.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	if inserted == 0 {
		fmt.Fprintln(os.Stderr, "Catalog already holds records, nothing seeded")
		return nil
	}
	fmt.Fprintf(os.Stderr, "Seeded %d records\n", inserted)
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
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

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
