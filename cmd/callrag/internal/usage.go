package internal

import (
	"fmt"
	"os"
)

const Version = "0.3.1"

// PrintUsage writes the top-level usage and subcommand list to stderr.
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `callrag - Question Answering over Earnings Call Transcripts

Version: %s

USAGE:
    callrag [global options] <command> [command options]

GLOBAL OPTIONS:
    -config <path>
        Path to config file (default: ~/.callrag/config/callrag.yaml)

    -v, -version
        Show version information

    -h, -help
        Show this help message

COMMANDS:
    ingest
        Chunk, embed, and index transcripts into the vector index

    query
        Ask a question against the indexed transcripts

    status
        Show per-document indexing state and corpus statistics

    grep
        Keyword search over raw transcripts (operator tooling)

    delete
        Remove a document from the index and registry

Run 'callrag <command> -h' for command-specific options.
`, Version)
}
