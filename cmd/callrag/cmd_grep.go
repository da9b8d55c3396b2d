package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/transcript"
)

// handleGrep implements the grep subcommand
func handleGrep(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("grep", flag.ExitOnError)
	company := fs.String("company", "", "Restrict matches to one ticker")
	topK := fs.Int("k", 10, "Maximum number of matching transcripts")
	rebuild := fs.Bool("rebuild", false, "Rebuild the keyword index from the transcript directory first")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    callrag grep [options] "<keywords>"

DESCRIPTION:
    Keyword search over the raw transcripts. Operator tooling for
    checking what the corpus literally contains; answers come from
    'callrag query' instead.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    callrag grep -rebuild "supply chain"
    callrag grep -company NVDA "data center"
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: keywords are required")
		fs.Usage()
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	var idx *transcript.TextIndex
	var err error
	if *rebuild {
		idx, err = rebuildTextIndex(cfg)
	} else {
		idx, err = transcript.OpenTextIndex(cfg.TextIndex.Path)
		if err != nil {
			log.Printf("Keyword index not available (%v), rebuilding", err)
			idx, err = rebuildTextIndex(cfg)
		}
	}
	if err != nil {
		log.Fatalf("Failed to open keyword index: %v", err)
	}
	defer idx.Close()

	hits, err := idx.Search(query, strings.ToUpper(*company), *topK)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	if len(hits) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, hit := range hits {
		fmt.Printf("%-40s %-6s %-8s %s  %.3f\n", hit.DocumentID, hit.Company, hit.Quarter, hit.Date, hit.Score)
	}
}

func rebuildTextIndex(cfg *config.Config) (*transcript.TextIndex, error) {
	ts, err := transcript.NewStore(cfg.Transcripts)
	if err != nil {
		return nil, err
	}

	idx, err := transcript.CreateTextIndex(cfg.TextIndex.Path)
	if err != nil {
		return nil, err
	}

	docs, problems := ts.ListDocuments()
	for _, problem := range problems {
		log.Printf("Skipped: %v", problem)
	}
	for i := range docs {
		if err := ts.Read(&docs[i]); err != nil {
			log.Printf("Skipped: %v", err)
			continue
		}
		if err := idx.IndexDocument(docs[i]); err != nil {
			idx.Close()
			return nil, fmt.Errorf("index %s: %w", docs[i].ID, err)
		}
	}
	count, _ := idx.DocCount()
	log.Printf("Keyword index rebuilt with %d transcripts", count)
	return idx, nil
}
