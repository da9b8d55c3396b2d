package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/rag"
)

// handleDelete implements the delete subcommand
func handleDelete(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    callrag delete <document-id>

DESCRIPTION:
    Remove a document from the vector index and the document registry.
    The transcript file on disk is left untouched; re-running ingest
    indexes it again. Document ids are listed by `+"`callrag status -all`"+`.

EXAMPLES:
    callrag delete aapl_2020-Jul-30.txt
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	documentID := fs.Arg(0)

	pipeline, err := rag.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer pipeline.Close()

	if err := pipeline.Delete(context.Background(), documentID); err != nil {
		log.Fatalf("Failed to delete %s: %v", documentID, err)
	}
	fmt.Printf("Deleted %s\n", documentID)
}
