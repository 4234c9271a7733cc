package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/selfgene/sg/internal/engine/mutation"
	"github.com/selfgene/sg/internal/engine/registry"
)

// handleEvolve is the manual-trigger path into the mutation engine's
// repair flow: instead of waiting for execute_locus to exhaust a
// locus's stack on its own, it hands the engine a free-text failing
// context directly and registers whatever it returns as a new fallback
// candidate, then runs one competition round against it.
func handleEvolve(args []string) error {
	fs := flag.NewFlagSet("sgctl evolve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	input := fs.String("input", "{}", "JSON input used for the post-generation competition round")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: sgctl evolve <locus> <context>")
	}
	locus, failContext := fs.Arg(0), fs.Arg(1)

	a, err := newApp()
	if err != nil {
		return err
	}

	stack := a.phenotype.GetStack(locus)
	var failingSource string
	if len(stack) > 0 {
		failingSource, _ = a.registry.LoadSource(stack[0])
	}

	source, err := a.mutation.Mutate(context.Background(), mutation.Context{
		GeneSource:   failingSource,
		Locus:        locus,
		FailingInput: *input,
		ErrorMessage: failContext,
	})
	if err != nil {
		return err
	}

	var parent registry.AlleleID
	if len(stack) > 0 {
		parent = stack[0]
	}
	id, err := a.registry.Register(source, locus, nextGeneration(a, parent)+1, parent)
	if err != nil {
		return err
	}
	a.phenotype.AddToFallback(locus, id)
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	if err := a.phenotype.Save(); err != nil {
		return err
	}

	fmt.Printf("registered %s, running one competition round\n", id)
	_, _, err = a.orch.ExecuteLocus(context.Background(), locus, *input)
	if err != nil {
		fmt.Printf("competition round: %v\n", err)
	} else {
		fmt.Println("competition round: ok")
	}
	return a.registry.SaveIndex()
}
