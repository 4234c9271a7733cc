// Package mutation is the opaque MutationEngine surface: when the
// orchestrator exhausts an allele stack, it asks a MutationEngine to
// synthesize (or load) replacement gene source from the failing
// context. Two implementations ship here: a fixture-backed engine for
// development/testing, and an LLM-backed engine speaking the
// Anthropic/OpenAI-compatible chat APIs.
package mutation

import "context"

// Context carries everything a mutation engine needs to repair a locus:
// the failing source, the locus name, the input that triggered the
// failure, and the error message from the last attempt.
type Context struct {
	GeneSource   string
	Locus        string
	FailingInput string
	ErrorMessage string
}

// Engine is the opaque mutation surface. Generate and GenerateFused are
// optional: an engine that does not support proactive generation or
// fusion returns ErrUnsupported.
type Engine interface {
	// Mutate returns repaired gene source for ctx.Locus, given the
	// failing source and error context.
	Mutate(ctx context.Context, mctx Context) (string, error)

	// Generate proactively produces count competing implementations of
	// locus from contractPrompt (the rendered .sg contract text).
	Generate(ctx context.Context, locus, contractPrompt string, count int) ([]string, error)

	// GenerateFused produces a single gene combining geneSources (in the
	// order given by loci) into one optimized implementation.
	GenerateFused(ctx context.Context, pathwayName string, geneSources []string, loci []string) (string, error)
}

// ErrUnsupported is returned by an engine that does not implement a
// given capability (mirrors the Python base class's NotImplementedError
// for proactive generation and fusion).
var ErrUnsupported = unsupportedError{}

type unsupportedError struct{}

func (unsupportedError) Error() string { return "mutation engine does not support this operation" }
