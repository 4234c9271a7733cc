package mutation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixtureEngineMutateReadsLocusFixture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bridge_create_fix.gene.js"), []byte("function execute(i){}"), 0o644))

	e := NewFixtureEngine(dir)
	source, err := e.Mutate(context.Background(), Context{Locus: "bridge_create"})
	require.NoError(t, err)
	require.Equal(t, "function execute(i){}", source)
}

func TestFixtureEngineMutateMissingFixtureErrors(t *testing.T) {
	e := NewFixtureEngine(t.TempDir())
	_, err := e.Mutate(context.Background(), Context{Locus: "bridge_create"})
	require.Error(t, err)
}

func TestFixtureEngineGenerateFusedReadsPathwayFixture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "provision_management_bridge_fused.gene.js"), []byte("function execute(i){}"), 0o644))

	e := NewFixtureEngine(dir)
	source, err := e.GenerateFused(context.Background(), "provision_management_bridge", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "function execute(i){}", source)
}

type stubCaller struct {
	response string
	prompts  []string
}

func (s *stubCaller) callAPI(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, nil
}

func newTestLLMEngine(response string) (*LLMEngine, *stubCaller) {
	caller := &stubCaller{response: response}
	return &LLMEngine{caller: caller}, caller
}

func TestLLMEngineExtractsFencedJavaScript(t *testing.T) {
	e, _ := newTestLLMEngine("here you go:\n```javascript\nfunction execute(i){return '{}';}\n```\nthanks")
	source, err := e.Mutate(context.Background(), Context{Locus: "bridge_create"})
	require.NoError(t, err)
	require.Equal(t, "function execute(i){return '{}';}", source)
}

func TestLLMEngineFallsBackToGenericFence(t *testing.T) {
	e, _ := newTestLLMEngine("```\nfunction execute(i){}\n```")
	source, err := e.Mutate(context.Background(), Context{Locus: "bridge_create"})
	require.NoError(t, err)
	require.Equal(t, "function execute(i){}", source)
}

func TestLLMEngineGenerateSplitsVariants(t *testing.T) {
	e, _ := newTestLLMEngine("```javascript\nfunction execute(a){}\n```\n---VARIANT---\n```javascript\nfunction execute(b){}\n```")
	variants, err := e.Generate(context.Background(), "bridge_create", "contract text", 2)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	require.Equal(t, "function execute(a){}", variants[0])
	require.Equal(t, "function execute(b){}", variants[1])
}

func TestLLMEngineGenerateSingleCountReturnsOneVariant(t *testing.T) {
	e, _ := newTestLLMEngine("```javascript\nfunction execute(i){}\n```")
	variants, err := e.Generate(context.Background(), "bridge_create", "contract text", 1)
	require.NoError(t, err)
	require.Len(t, variants, 1)
}

func TestLLMEngineGenerateFusedIncludesAllSteps(t *testing.T) {
	e, caller := newTestLLMEngine("```javascript\nfunction execute(i){}\n```")
	_, err := e.GenerateFused(context.Background(), "provision_management_bridge",
		[]string{"source a", "source b"}, []string{"bridge_create", "set_stp"})
	require.NoError(t, err)
	require.Contains(t, caller.prompts[0], "Step 1: bridge_create")
	require.Contains(t, caller.prompts[0], "Step 2: set_stp")
	require.Contains(t, caller.prompts[0], "source a")
	require.Contains(t, caller.prompts[0], "source b")
}
