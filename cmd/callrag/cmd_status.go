package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/rag"
	"github.com/finsightlabs/callrag/internal/store"
	"github.com/finsightlabs/callrag/internal/transcript"
)

// handleStatus implements the status subcommand
func handleStatus(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	showAll := fs.Bool("all", false, "List every document's state")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    callrag status [options] [document-id]

DESCRIPTION:
    Without arguments, print corpus statistics and indexing state
    counts. With a document id, print that document's state.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    callrag status
    callrag status -all
    callrag status aapl_2020-Jul-30-AAPL.txt
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

	if fs.NArg() > 0 {
		printDocumentStatus(pipeline, fs.Arg(0))
		return
	}
	if *showAll {
		printAllStatuses(pipeline)
		return
	}
	printCorpusStats(pipeline)
}

func printDocumentStatus(pipeline *rag.Pipeline, documentID string) {
	status, err := pipeline.IndexStatus(context.Background(), documentID)
	if err != nil {
		log.Fatalf("Failed to read status: %v", err)
	}
	if status == nil {
		fmt.Printf("Document %s has never been submitted for indexing.\n", documentID)
		return
	}
	printStatusRow(*status)
}

func printAllStatuses(pipeline *rag.Pipeline) {
	statuses, err := pipeline.Statuses()
	if err != nil {
		log.Fatalf("Failed to list statuses: %v", err)
	}
	if len(statuses) == 0 {
		fmt.Println("No documents have been submitted for indexing.")
		return
	}
	for _, st := range statuses {
		printStatusRow(st)
	}
}

func printStatusRow(st store.IndexStatus) {
	line := fmt.Sprintf("%-40s %-9s attempts=%d", st.DocumentID, st.State, st.Attempts)
	if st.LastAttemptAt != nil {
		line += " last=" + st.LastAttemptAt.Format("2006-01-02 15:04:05")
	}
	fmt.Println(line)
	if st.LastError != "" {
		fmt.Printf("    error: %s\n", st.LastError)
	}
}

func printCorpusStats(pipeline *rag.Pipeline) {
	stats, err := pipeline.Stats()
	if err != nil {
		log.Fatalf("Failed to read stats: %v", err)
	}
	counts, err := pipeline.StatusCounts()
	if err != nil {
		log.Fatalf("Failed to read status counts: %v", err)
	}

	if len(stats) == 0 {
		fmt.Println("No documents indexed yet. Run `callrag ingest` first.")
		return
	}

	fmt.Println("Indexed corpus:")
	totalDocs := 0
	totalChunks := 0
	for _, cs := range stats {
		fmt.Printf("  %-6s %-32s %3d documents %5d chunks  %s .. %s\n",
			cs.Company, transcript.CompanyName(cs.Company), cs.Documents, cs.Chunks, cs.FirstDate, cs.LatestDate)
		totalDocs += cs.Documents
		totalChunks += cs.Chunks
	}
	fmt.Printf("\nTotal: %d documents, %d chunks\n", totalDocs, totalChunks)

	if len(counts) > 0 {
		fmt.Println("\nIndexing state:")
		for _, state := range []string{store.StateIndexed, store.StateIndexing, store.StatePending, store.StateFailed} {
			if n, ok := counts[state]; ok {
				fmt.Printf("  %-9s %d\n", state, n)
			}
		}
	}
}
