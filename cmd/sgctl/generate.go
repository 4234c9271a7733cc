package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/selfgene/sg/internal/engine/registry"
)

func handleGenerate(args []string) error {
	fs := flag.NewFlagSet("sgctl generate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	count := fs.Int("count", 3, "number of competing implementations to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: sgctl generate <locus> --count <n>")
	}
	locus := fs.Arg(0)

	a, err := newApp()
	if err != nil {
		return err
	}
	contract, ok := a.contracts.Gene(locus)
	if !ok {
		return fmt.Errorf("no gene contract named %q", locus)
	}

	sources, err := a.mutation.Generate(context.Background(), locus, geneContractPrompt(contract.Name, string(contract.Family), string(contract.Risk)), *count)
	if err != nil {
		return err
	}

	var parent registry.AlleleID
	if stack := a.phenotype.GetStack(locus); len(stack) > 0 {
		parent = stack[0]
	}

	for _, source := range sources {
		id, err := a.registry.Register(source, locus, nextGeneration(a, parent)+1, parent)
		if err != nil {
			return err
		}
		a.phenotype.AddToFallback(locus, id)
		fmt.Printf("registered %s\n", id)
	}
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	return a.phenotype.Save()
}

func nextGeneration(a *app, parent registry.AlleleID) int {
	if parent == "" {
		return 0
	}
	if al, ok := a.registry.Get(parent); ok {
		return al.Generation
	}
	return 0
}

func geneContractPrompt(name, family, risk string) string {
	return fmt.Sprintf("gene %s (family=%s, risk=%s)", name, family, risk)
}
