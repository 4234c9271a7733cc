// Command sgctl drives a self-evolving execution engine from the local
// project directory: it runs pathways and loci, inspects allele
// lineage, forces competition rounds, takes and restores snapshots of
// persisted state, and exchanges alleles with federation peers.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	root := flag.NewFlagSet("sgctl", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	if err := root.Parse(args); err != nil {
		return usageError(err)
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		return usageError(errors.New("no command specified"))
	}

	switch remaining[0] {
	case "init":
		return handleInit(remaining[1:])
	case "run":
		return handleRun(remaining[1:])
	case "topology":
		return handleTopology(remaining[1:])
	case "status":
		return handleStatus(remaining[1:])
	case "lineage":
		return handleLineage(remaining[1:])
	case "compete":
		return handleCompete(remaining[1:])
	case "promote":
		return handlePromote(remaining[1:])
	case "kernels":
		return handleKernels(remaining[1:])
	case "generate":
		return handleGenerate(remaining[1:])
	case "evolve":
		return handleEvolve(remaining[1:])
	case "snapshot":
		return handleSnapshot(remaining[1:])
	case "pool":
		return handlePool(remaining[1:])
	case "watch":
		return handleWatch(remaining[1:])
	case "completions":
		return handleCompletions(remaining[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", remaining[0]))
	}
}

func usageError(err error) error {
	printRootUsage()
	return err
}

func printRootUsage() {
	fmt.Println(`sgctl - self-evolving execution engine CLI

Usage:
  sgctl <command> [flags]

Commands:
  init                    Create the .sg project layout under SG_PROJECT_ROOT
  run <pathway>           Run a named pathway, --input <json>
  topology <name>         Decompose and run a named topology, --input <json>
  status [locus]          Show dominance stack and fitness summary
  lineage <locus>         Show an allele's full ancestry
  compete <locus>         Force N competition rounds, --input <json> --rounds <n>
  promote <locus> <id>    Make an already-registered allele dominant
  kernels                 List the active kernel's domain and operations
  generate <locus>        Proactively generate competing alleles for a locus
  evolve <locus>          Generate candidates from free-text context, then compete
  snapshot <subcommand>   create|restore|list|delete named state snapshots
  pool <subcommand>       push|pull|auto|list|status against federation peers
  watch                   Run the verify scheduler until interrupted
  completions <shell>     Print a shell completion script
  help                    Show this message

Environment:
  SG_PROJECT_ROOT         Project root directory (default ".")
  SG_MUTATION_ENGINE      fixture|claude|openai|deepseek (default "fixture")
  SG_POOL_JWT_SECRET      Shared secret signing pool requests
  SG_SNAPSHOT_ROTATION_ENABLED  Enable watch's recurring snapshot rotation (default false)
  SG_SNAPSHOT_CRON        Cron expression for snapshot rotation (default "@every 1h")
  SG_SNAPSHOT_RETAIN      Snapshots to keep after rotation (default 24)`)
}
