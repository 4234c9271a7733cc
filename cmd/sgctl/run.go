package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/selfgene/sg/internal/engine/arena"
	"github.com/selfgene/sg/internal/engine/registry"
)

func handleRun(args []string) error {
	fs := flag.NewFlagSet("sgctl run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	input := fs.String("input", "{}", "JSON input for the pathway")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: sgctl run <pathway> --input <json>")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	outputs, err := a.orch.RunPathway(context.Background(), fs.Arg(0), *input)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		fmt.Println(out)
	}
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	return a.phenotype.Save()
}

func handleTopology(args []string) error {
	fs := flag.NewFlagSet("sgctl topology", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	input := fs.String("input", "{}", "JSON input for the topology")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: sgctl topology <name> --input <json>")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	outputs, err := a.orch.RunTopology(context.Background(), fs.Arg(0), *input)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		fmt.Println(out)
	}
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	return a.phenotype.Save()
}

func handleStatus(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return printLocusStatus(a, args[0])
	}

	loci := make(map[string]bool)
	for _, al := range a.registry.All() {
		loci[al.Locus] = true
	}
	names := make([]string, 0, len(loci))
	for name := range loci {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := printLocusStatus(a, name); err != nil {
			return err
		}
	}
	return nil
}

func printLocusStatus(a *app, locus string) error {
	stack := a.phenotype.GetStack(locus)
	if len(stack) == 0 {
		fmt.Printf("%s: no dominance stack recorded\n", locus)
		return nil
	}
	fmt.Printf("%s:\n", locus)
	for i, id := range stack {
		al, ok := a.registry.Get(id)
		if !ok {
			fmt.Printf("  [%d] %s (source missing)\n", i, id)
			continue
		}
		role := "fallback"
		if i == 0 {
			role = "dominant"
		}
		fmt.Printf("  [%d] %s %-9s fitness=%.3f gen=%d successes=%d failures=%d\n",
			i, al.ID, role, arena.DistributedFitness(al), al.Generation,
			al.SuccessfulInvocations, al.FailedInvocations)
	}
	return nil
}

func handleLineage(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sgctl lineage <locus>")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	stack := a.phenotype.GetStack(args[0])
	if len(stack) == 0 {
		return fmt.Errorf("locus %q has no dominance stack", args[0])
	}
	return printLineage(a, stack[0])
}

func printLineage(a *app, id registry.AlleleID) error {
	var chain []*registry.Allele
	for id != "" {
		al, ok := a.registry.Get(id)
		if !ok {
			break
		}
		chain = append(chain, al)
		id = al.Parent
	}
	for i := len(chain) - 1; i >= 0; i-- {
		al := chain[i]
		fmt.Printf("gen %d  %s  fitness=%.3f  state=%s\n", al.Generation, al.ID, arena.DistributedFitness(al), al.State)
	}
	return nil
}

func handleCompete(args []string) error {
	fs := flag.NewFlagSet("sgctl compete", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	input := fs.String("input", "{}", "JSON input to run each candidate against")
	rounds := fs.Int("rounds", 1, "number of competition rounds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: sgctl compete <locus> --input <json> --rounds <n>")
	}
	locus := fs.Arg(0)

	a, err := newApp()
	if err != nil {
		return err
	}

	ctx := context.Background()
	for round := 0; round < *rounds; round++ {
		_, _, err := a.orch.ExecuteLocus(ctx, locus, *input)
		if err != nil {
			fmt.Printf("round %d: %v\n", round, err)
			continue
		}
		fmt.Printf("round %d: ok\n", round)
	}
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	return a.phenotype.Save()
}

func handleKernels(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	fmt.Printf("domain: %s\n", a.kernel.DomainName())
	ops, err := a.kernel.DescribeOperations(context.Background())
	if err != nil {
		return err
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Printf("  %s\n", op)
	}
	return nil
}
