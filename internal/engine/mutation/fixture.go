package mutation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FixtureEngine loads pre-written gene source from a fixtures directory
// instead of calling out to an LLM: `<locus>_fix.gene.js` for Mutate and
// Generate, `<pathway>_fused.gene.js` for GenerateFused. Used in
// development and in tests, grounded in the reference implementation's
// MockMutationEngine.
type FixtureEngine struct {
	fixturesDir string
}

// NewFixtureEngine constructs a FixtureEngine rooted at dir.
func NewFixtureEngine(dir string) *FixtureEngine {
	return &FixtureEngine{fixturesDir: dir}
}

var _ Engine = (*FixtureEngine)(nil)

// Mutate reads <locus>_fix.gene.js.
func (f *FixtureEngine) Mutate(ctx context.Context, mctx Context) (string, error) {
	return f.readFixture(fmt.Sprintf("%s_fix.gene.js", mctx.Locus))
}

// Generate reads <locus>_fix.gene.js, ignoring count and contractPrompt
// (fixtures are pre-written, not generated on demand).
func (f *FixtureEngine) Generate(ctx context.Context, locus, contractPrompt string, count int) ([]string, error) {
	source, err := f.readFixture(fmt.Sprintf("%s_fix.gene.js", locus))
	if err != nil {
		return nil, err
	}
	return []string{source}, nil
}

// GenerateFused reads <pathwayName>_fused.gene.js.
func (f *FixtureEngine) GenerateFused(ctx context.Context, pathwayName string, geneSources []string, loci []string) (string, error) {
	return f.readFixture(fmt.Sprintf("%s_fused.gene.js", pathwayName))
}

func (f *FixtureEngine) readFixture(name string) (string, error) {
	path := filepath.Join(f.fixturesDir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("no fixture at %s: %w", path, err)
	}
	return string(raw), nil
}
