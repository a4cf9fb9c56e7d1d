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
	"fmt"
	"log"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/docvault"
	"github.com/poiesic/docvault/ai"
	"github.com/poiesic/docvault/chunk"
	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/pipeline"
)

func main() {
	// A .env file is optional; it must load before flag parsing so that
	// EnvVars pick its values up.
	_ = godotenv.Load()

	serviceFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "data",
			Aliases:  []string{"d"},
			Usage:    "Path to the data directory",
			Required: true,
			EnvVars:  []string{"DOCVAULT_DATA"},
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			Value:   "http://localhost:11434/v1",
			EnvVars: []string{"DOCVAULT_EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Value:   "text-embedding-3-small",
			EnvVars: []string{"DOCVAULT_EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "embedding-token",
			Usage:   "Embedding service API token",
			EnvVars: []string{"DOCVAULT_EMBEDDING_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "dimensions",
			Usage:   "Embedding vector dimensionality",
			Value:   1536,
			EnvVars: []string{"DOCVAULT_DIMENSIONS"},
		},
		&cli.IntFlag{
			Name:    "rate-limit",
			Usage:   "Maximum embedding requests per minute (0 = unlimited)",
			EnvVars: []string{"DOCVAULT_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Concurrent document processing workers",
			EnvVars: []string{"DOCVAULT_WORKERS"},
		},
		&cli.StringFlag{
			Name:    "chunk-strategy",
			Usage:   "Chunking strategy (semantic, fixed, markdown)",
			Value:   "semantic",
			EnvVars: []string{"DOCVAULT_CHUNK_STRATEGY"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "Address for the Prometheus metrics endpoint (empty = disabled)",
			EnvVars: []string{"DOCVAULT_METRICS_LISTEN"},
		},
	}

	app := &cli.App{
		Name:  "docvault",
		Usage: "Document processing and semantic search over embedded chunks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a document and process it",
				ArgsUsage: "FILE",
				Action:    addCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "External document identifier (defaults to the file name)",
					},
					&cli.StringFlag{
						Name:  "content-type",
						Usage: "Content type (defaults to a guess from the file extension)",
					},
					&cli.BoolFlag{
						Name:  "no-process",
						Usage: "Only register the upload, do not run the pipeline",
					},
				}, serviceFlags...),
			},
			{
				Name:      "process",
				Usage:     "Run the processing pipeline for a document",
				ArgsUsage: "EXTERNAL_ID",
				Action:    processCommand,
				Flags:     serviceFlags,
			},
			{
				Name:      "reprocess",
				Usage:     "Re-run the full pipeline for a processed document",
				ArgsUsage: "EXTERNAL_ID",
				Action:    reprocessCommand,
				Flags:     serviceFlags,
			},
			{
				Name:      "cancel",
				Usage:     "Request cancellation of a running pipeline",
				ArgsUsage: "EXTERNAL_ID",
				Action:    cancelCommand,
				Flags:     serviceFlags,
			},
			{
				Name:   "recover",
				Usage:  "Resume runs interrupted by a crash",
				Action: recoverCommand,
				Flags:  serviceFlags,
			},
			{
				Name:      "status",
				Usage:     "Show processing status for a document",
				ArgsUsage: "EXTERNAL_ID",
				Action:    statusCommand,
				Flags:     serviceFlags,
			},
			{
				Name:   "list",
				Usage:  "List documents",
				Action: listCommand,
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum documents to list (0 = all)",
					},
				}, serviceFlags...),
			},
			{
				Name:      "delete",
				Usage:     "Delete a document with its chunks and blobs",
				ArgsUsage: "EXTERNAL_ID",
				Action:    deleteCommand,
				Flags:     serviceFlags,
			},
			{
				Name:      "search",
				Usage:     "Search stored chunks by semantic similarity",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: append([]cli.Flag{
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity score",
						Value: 0.7,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum results",
						Value: 10,
					},
				}, serviceFlags...),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func buildService(c *cli.Context) (*docvault.Service, error) {
	strategy, err := chunk.ParseStrategy(c.String("chunk-strategy"))
	if err != nil {
		return nil, err
	}

	opts := []docvault.ServiceOption{
		docvault.WithAIConfig(ai.NewConfig(
			ai.WithHost(c.String("embedding-host")),
			ai.WithModel(c.String("embedding-model")),
			ai.WithToken(c.String("embedding-token")),
			ai.WithDimensions(c.Int("dimensions")),
		)),
		docvault.WithChunkOptions(chunk.WithStrategy(strategy)),
	}
	if rate := c.Int("rate-limit"); rate > 0 {
		opts = append(opts, docvault.WithRateLimit(rate, time.Minute))
	}
	if workers := c.Int("workers"); workers > 0 {
		opts = append(opts, docvault.WithPipelineOptions(pipeline.WithPoolSize(workers)))
	}

	if addr := c.String("metrics-listen"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				slog.Error("metrics endpoint failed", "addr", addr, "error", err)
			}
		}()
	}

	return docvault.NewService(c.String("data"), opts...)
}

func addCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("file argument is required")
	}

	externalID := c.String("id")
	if externalID == "" {
		externalID = filepath.Base(path)
	}
	contentType := c.String("content-type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	if contentType == "" {
		contentType = "text/plain"
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	doc, err := svc.AddDocument(ctx, externalID, filepath.Base(path), contentType, f)
	if err != nil {
		return err
	}
	fmt.Printf("added document %d (%s, %d bytes)\n", doc.Id, contentType, doc.SizeBytes)

	if c.Bool("no-process") {
		return nil
	}
	if err := svc.Process(ctx, doc.Id); err != nil {
		return err
	}
	doc, err = svc.GetDocument(ctx, doc.Id)
	if err != nil {
		return err
	}
	fmt.Printf("processed into %d chunks\n", doc.ChunkCount)
	return nil
}

func processCommand(c *cli.Context) error {
	return withDocument(c, func(ctx context.Context, svc *docvault.Service, doc *core.Document) error {
		if err := svc.Process(ctx, doc.Id); err != nil {
			return err
		}
		doc, err := svc.GetDocument(ctx, doc.Id)
		if err != nil {
			return err
		}
		fmt.Printf("processed into %d chunks\n", doc.ChunkCount)
		return nil
	})
}

func reprocessCommand(c *cli.Context) error {
	return withDocument(c, func(ctx context.Context, svc *docvault.Service, doc *core.Document) error {
		workflowID, err := svc.Reprocess(ctx, doc.Id)
		if err != nil {
			return err
		}
		fmt.Printf("reprocessing as %s\n", workflowID)
		svc.Wait()
		return nil
	})
}

func cancelCommand(c *cli.Context) error {
	return withDocument(c, func(ctx context.Context, svc *docvault.Service, doc *core.Document) error {
		if err := svc.Cancel(ctx, doc.Id); err != nil {
			return err
		}
		fmt.Println("cancellation requested")
		return nil
	})
}

func recoverCommand(c *cli.Context) error {
	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	n, err := svc.Recover(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("resubmitted %d interrupted runs\n", n)
	svc.Wait()
	return nil
}

func statusCommand(c *cli.Context) error {
	return withDocument(c, func(ctx context.Context, svc *docvault.Service, doc *core.Document) error {
		status, err := svc.Status(ctx, doc.Id)
		if err != nil {
			return err
		}

		fmt.Printf("document %d (%s)\n", doc.Id, doc.ExternalId)
		fmt.Printf("  upload:     %s\n", status.Document.UploadStatus)
		fmt.Printf("  processing: %s\n", status.Document.ProcessingStatus)
		fmt.Printf("  chunks:     %d\n", status.Document.ChunkCount)
		if status.Document.ErrorMessage != "" {
			fmt.Printf("  error:      %s\n", status.Document.ErrorMessage)
		}
		if status.Execution != nil {
			fmt.Printf("  execution:  %s (%s, stage %s)\n",
				status.Execution.WorkflowId, status.Execution.Status, status.Execution.CurrentStage)
		}
		for _, job := range status.Jobs {
			line := fmt.Sprintf("  job %-13s %s", job.Stage, job.Status)
			if job.RetryCount > 0 {
				line += fmt.Sprintf(" (%d retries)", job.RetryCount)
			}
			if job.ErrorMessage != "" {
				line += " " + job.ErrorMessage
			}
			fmt.Println(line)
		}
		return nil
	})
}

func listCommand(c *cli.Context) error {
	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	docs, err := svc.ListDocuments(context.Background(), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, doc := range docs {
		fmt.Printf("%d\t%s\t%s\t%s\t%d chunks\n",
			doc.Id, doc.ExternalId, doc.ContentType, doc.ProcessingStatus, doc.ChunkCount)
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	return withDocument(c, func(ctx context.Context, svc *docvault.Service, doc *core.Document) error {
		if err := svc.DeleteDocument(ctx, doc.Id); err != nil {
			return err
		}
		fmt.Printf("deleted document %d\n", doc.Id)
		return nil
	})
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" {
		return fmt.Errorf("query argument is required")
	}

	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	results, err := svc.SearchWith(context.Background(), query,
		float32(c.Float64("threshold")), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (chunk %d)\n", i+1, r.Score, r.Document.ExternalId, r.Chunk.Index)
		if heading := r.Chunk.Metadata["heading"]; heading != "" {
			fmt.Printf("   %s\n", heading)
		}
		fmt.Printf("   %s\n", excerpt(r.Chunk.Text, 200))
	}
	return nil
}

// withDocument resolves the external id argument and runs fn with an
// open service.
func withDocument(c *cli.Context, fn func(context.Context, *docvault.Service, *core.Document) error) error {
	externalID := c.Args().First()
	if externalID == "" {
		return fmt.Errorf("external id argument is required")
	}

	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	doc, err := svc.GetDocument(ctx, core.IDFromContent(externalID))
	if err != nil {
		return err
	}
	return fn(ctx, svc, doc)
}

func excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

func setup(c *cli.Context) error {
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
