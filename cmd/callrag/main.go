package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/finsightlabs/callrag/cmd/callrag/internal"
	"github.com/finsightlabs/callrag/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		internal.PrintUsage()
		os.Exit(1)
	}

	// API keys may live in a local .env instead of the shell environment.
	_ = godotenv.Load()

	configPath := ""
	args := os.Args[1:]

	for _, arg := range args {
		if arg == "-h" || arg == "-help" || arg == "--help" {
			internal.PrintUsage()
			os.Exit(0)
		}
		if arg == "-v" || arg == "-version" || arg == "--version" {
			fmt.Printf("callrag version %s\n", internal.Version)
			os.Exit(0)
		}
	}

	validSubcommands := map[string]bool{
		"ingest": true,
		"query":  true,
		"status": true,
		"grep":   true,
		"delete": true,
	}

	subcommandIndex := -1
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") && validSubcommands[arg] {
			subcommandIndex = i
			break
		}
	}

	if subcommandIndex == -1 {
		fmt.Fprintf(os.Stderr, "Error: No subcommand specified\n\n")
		internal.PrintUsage()
		os.Exit(1)
	}

	globalFlags := args[:subcommandIndex]
	for i := 0; i < len(globalFlags); i++ {
		flag := globalFlags[i]
		if flag == "-config" || flag == "--config" {
			if i+1 < len(globalFlags) {
				configPath = globalFlags[i+1]
				i++
			}
		} else if strings.HasPrefix(flag, "-") {
			fmt.Fprintf(os.Stderr, "Error: Unknown global flag: %s\n\n", flag)
			internal.PrintUsage()
			os.Exit(1)
		}
	}

	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		if config.IsConfigNotFound(err) {
			if notFoundErr, ok := err.(*config.ConfigNotFoundError); ok && args[subcommandIndex] == "ingest" {
				created, createErr := config.WriteDefaultTemplate(notFoundErr.RequestedPath)
				if createErr != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
					fmt.Fprintf(os.Stderr, "Also failed to create default config at %s: %v\n\n", notFoundErr.RequestedPath, createErr)
					internal.PrintConfigExample()
					os.Exit(1)
				}
				if created {
					fmt.Fprintf(os.Stderr, "Created default config at %s\n", notFoundErr.RequestedPath)
				}
				fmt.Fprintln(os.Stderr, "Please update transcripts.path and the api keys in the config file and rerun `callrag ingest`.")
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			internal.PrintConfigExample()
			os.Exit(1)
		}
		log.Fatalf("Failed to load config: %v\n", err)
	}

	if err := internal.ApplyDefaultPaths(cfg); err != nil {
		log.Fatalf("Failed to resolve data paths: %v\n", err)
	}

	subcommand := args[subcommandIndex]
	subcommandArgs := args[subcommandIndex+1:]

	if subcommand != "query" {
		if err := internal.SetupLogging(subcommand); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize log file: %v\n", err)
		}
	}

	switch subcommand {
	case "ingest":
		handleIngest(cfg, subcommandArgs)
	case "query":
		handleQuery(cfg, subcommandArgs)
	case "status":
		handleStatus(cfg, subcommandArgs)
	case "grep":
		handleGrep(cfg, subcommandArgs)
	case "delete":
		handleDelete(cfg, subcommandArgs)
	default:
		fmt.Printf("Unknown subcommand: %s\n\n", subcommand)
		internal.PrintUsage()
		os.Exit(1)
	}
}
