package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/rag"
)

// handleQuery implements the query subcommand
func handleQuery(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	companies := fs.String("company", "", "Comma-separated ticker filter, e.g. AAPL,MSFT")
	from := fs.String("from", "", "Earliest call date (YYYY-MM-DD, inclusive)")
	to := fs.String("to", "", "Latest call date (YYYY-MM-DD, inclusive)")
	maxResults := fs.Int("k", 0, "Cap on retrieved chunks (default: dynamic)")
	jsonOut := fs.Bool("json", false, "Emit the full result as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    callrag query [options] "<question>"

DESCRIPTION:
    Answer a question from the indexed earnings call transcripts. The
    answer cites numbered excerpts; the excerpt list is printed after
    the answer.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    callrag query "What did Apple say about services revenue?"

    # Compare companies within a period
    callrag query -company AAPL,MSFT -from 2020-01-01 -to 2020-12-31 \
        "Compare cloud revenue growth"
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: question is required")
		fs.Usage()
		os.Exit(1)
	}
	question := strings.Join(fs.Args(), " ")

	pipeline, err := rag.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer pipeline.Close()

	spec := rag.QuerySpec{
		Question:   question,
		DateFrom:   *from,
		DateTo:     *to,
		MaxResults: *maxResults,
	}
	if *companies != "" {
		spec.Companies = strings.Split(*companies, ",")
	}

	result, err := pipeline.Query(context.Background(), spec)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
		return
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range result.Sources {
			fmt.Printf("  [%d] %s %s (%s) score %.2f\n", i+1, src.Company, src.Quarter, src.Date, src.Score)
		}
	}
	if result.Truncated {
		fmt.Println("\nNote: some retrieved excerpts were dropped to fit the context budget.")
	}
	fmt.Printf("\nAnswered in %v\n", result.Elapsed.Round(10*time.Millisecond))
}
