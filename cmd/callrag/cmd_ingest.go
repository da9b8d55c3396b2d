package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/finsightlabs/callrag/cmd/callrag/internal"
	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/indexer"
	"github.com/finsightlabs/callrag/internal/rag"
	"github.com/finsightlabs/callrag/internal/transcript"
)

// handleIngest implements the ingest subcommand
func handleIngest(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	company := fs.String("company", "", "Only ingest transcripts for this ticker")
	noProgress := fs.Bool("no-progress", false, "Disable the progress bar")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    callrag ingest [options]

DESCRIPTION:
    Scan the configured transcript directory, chunk and embed every
    transcript, and publish the chunks to the vector index. Unchanged
    transcripts are skipped; changed ones are replaced atomically.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Ingest the whole corpus
    callrag ingest

    # Ingest a single company
    callrag ingest -company AAPL
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	pipeline, err := rag.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer pipeline.Close()

	ctx := context.Background()
	startTime := time.Now()

	if *company != "" {
		ingestCompany(ctx, pipeline, *company, *noProgress)
	} else {
		ingestAll(ctx, pipeline, *noProgress)
	}

	fmt.Printf("Done in %v\n", time.Since(startTime).Round(time.Millisecond))
}

func ingestAll(ctx context.Context, pipeline *rag.Pipeline, noProgress bool) {
	ts, err := pipeline.Transcripts()
	if err != nil {
		log.Fatalf("Failed to open transcript directory: %v", err)
	}
	docs, _ := ts.ListDocuments()

	progress := internal.NewIngestProgress(!noProgress && internal.DefaultProgressEnabled())
	if progress != nil {
		progress.Start(len(docs))
	}

	results, problems := pipeline.IngestDir(ctx, func(res indexer.DocResult) {
		if progress != nil {
			progress.Increment()
		}
	})
	if progress != nil {
		progress.Finish()
	}

	reportIngest(results, problems)
}

func ingestCompany(ctx context.Context, pipeline *rag.Pipeline, ticker string, noProgress bool) {
	ts, err := pipeline.Transcripts()
	if err != nil {
		log.Fatalf("Failed to open transcript directory: %v", err)
	}
	all, problems := ts.ListDocuments()

	docs := filterByCompany(all, ticker)
	if len(docs) == 0 {
		log.Fatalf("No transcripts found for %s", ticker)
	}

	progress := internal.NewIngestProgress(!noProgress && internal.DefaultProgressEnabled())
	if progress != nil {
		progress.Start(len(docs))
	}

	var results []indexer.DocResult
	for _, doc := range docs {
		err := pipeline.Ingest(ctx, doc)
		results = append(results, indexer.DocResult{DocumentID: doc.ID, Err: err})
		if progress != nil {
			progress.Increment()
		}
	}
	if progress != nil {
		progress.Finish()
	}

	reportIngest(results, problems)
}

// filterByCompany keeps the documents whose ticker matches, ignoring
// case so `-company aapl` finds the uppercased directory ticker.
func filterByCompany(docs []transcript.Document, ticker string) []transcript.Document {
	var out []transcript.Document
	for _, doc := range docs {
		if strings.EqualFold(doc.Company, ticker) {
			out = append(out, doc)
		}
	}
	return out
}

func reportIngest(results []indexer.DocResult, problems []error) {
	indexed := 0
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			log.Printf("Failed to index %s: %v", res.DocumentID, res.Err)
			continue
		}
		indexed++
	}
	for _, err := range problems {
		log.Printf("Skipped: %v", err)
	}
	fmt.Printf("Indexed %d documents, %d failed, %d skipped\n", indexed, failed, len(problems))
	if failed > 0 {
		fmt.Println("Run `callrag status` for per-document detail.")
	}
}
