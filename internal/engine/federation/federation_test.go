package federation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selfgene/sg/internal/contracts"
	"github.com/selfgene/sg/internal/engine/phenotype"
	"github.com/selfgene/sg/internal/engine/registry"
)

func fixedFitness(f float64) FitnessFunc {
	return func(a *registry.Allele) float64 { return f }
}

func TestExportIncludesEveryAlleleForLocus(t *testing.T) {
	reg := registry.New(t.TempDir())
	pheno := phenotype.New(t.TempDir())
	id, err := reg.Register("function execute(i){return '{}';}", "bridge_create", 0, "")
	require.NoError(t, err)

	ex := New(reg, pheno, fixedFitness(0.73))
	exported, err := ex.Export("bridge_create")
	require.NoError(t, err)
	require.Len(t, exported, 1)
	require.Equal(t, string(id), exported[0].SHA256)
	require.Equal(t, 0.73, exported[0].Fitness)
}

func TestImportRejectsHashMismatch(t *testing.T) {
	reg := registry.New(t.TempDir())
	pheno := phenotype.New(t.TempDir())
	ex := New(reg, pheno, fixedFitness(0))

	_, err := ex.Import("peer-a", ExportedAllele{SHA256: "not-the-real-hash", Locus: "bridge_create", Source: "function execute(i){return '{}';}"})
	require.Error(t, err)
}

func TestImportRejectsMalformedDigestBeforeComparison(t *testing.T) {
	reg := registry.New(t.TempDir())
	pheno := phenotype.New(t.TempDir())
	ex := New(reg, pheno, fixedFitness(0))

	// A peer-declared SHA256 that's the wrong length should be rejected as
	// malformed, the same engerr.FederationIntegrity error as a genuine
	// mismatch, without ever reaching the registry's hash comparison.
	_, err := ex.Import("peer-a", ExportedAllele{SHA256: "abcd", Locus: "bridge_create", Source: "function execute(i){return '{}';}"})
	require.Error(t, err)
}

func TestImportRegistersAndAddsToFallback(t *testing.T) {
	reg := registry.New(t.TempDir())
	pheno := phenotype.New(t.TempDir())
	ex := New(reg, pheno, fixedFitness(0))

	source := "function execute(i){return '{}';}"
	id := registry.Identity(source)

	gotID, err := ex.Import("peer-a", ExportedAllele{
		SHA256:                string(id),
		Locus:                 "bridge_create",
		Generation:            2,
		Source:                source,
		SuccessfulInvocations: 8,
		TotalInvocations:      10,
	})
	require.NoError(t, err)
	require.Equal(t, id, gotID)

	allele, ok := reg.Get(gotID)
	require.True(t, ok)
	require.Equal(t, 2, allele.Generation)
	require.Equal(t, registry.StateRecessive, allele.State)
	require.Len(t, allele.PeerObservations, 1)
	require.Equal(t, "peer-a", allele.PeerObservations[0].Peer)
	require.Equal(t, int64(8), allele.PeerObservations[0].Successes)
	require.Equal(t, int64(2), allele.PeerObservations[0].Failures)

	stack := pheno.GetStack("bridge_create")
	require.Contains(t, stack, gotID)
}

func TestCompatibleAcceptsMatchingRequiredFields(t *testing.T) {
	a := &contracts.GeneContract{
		Takes: map[string]contracts.FieldSchema{"bridge_name": {Type: "string"}},
		Gives: map[string]contracts.FieldSchema{"success": {Type: "bool"}},
	}
	b := &contracts.GeneContract{
		Takes: map[string]contracts.FieldSchema{"bridge_name": {Type: "string"}, "mtu": {Type: "int", Optional: true}},
		Gives: map[string]contracts.FieldSchema{"success": {Type: "bool"}},
	}
	ok, err := Compatible(a, b)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCompatibleRejectsTypeMismatch(t *testing.T) {
	a := &contracts.GeneContract{Takes: map[string]contracts.FieldSchema{"bridge_name": {Type: "string"}}}
	b := &contracts.GeneContract{Takes: map[string]contracts.FieldSchema{"bridge_name": {Type: "int"}}}
	ok, err := Compatible(a, b)
	require.Error(t, err)
	require.False(t, ok)
}

func TestCompatibleRejectsMissingRequiredField(t *testing.T) {
	a := &contracts.GeneContract{Takes: map[string]contracts.FieldSchema{"bridge_name": {Type: "string"}}}
	b := &contracts.GeneContract{Takes: map[string]contracts.FieldSchema{}}
	ok, err := Compatible(a, b)
	require.Error(t, err)
	require.False(t, ok)
}

func TestCompatibleIgnoresOptionalFieldsOnlyOnOneSide(t *testing.T) {
	a := &contracts.GeneContract{Takes: map[string]contracts.FieldSchema{"vlan": {Type: "int", Optional: true}}}
	b := &contracts.GeneContract{Takes: map[string]contracts.FieldSchema{}}
	ok, err := Compatible(a, b)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProbeFieldEvaluatesJSONPath(t *testing.T) {
	contract := &contracts.GeneContract{Name: "bridge_create", Risk: contracts.RiskLow}
	v, err := ProbeField(contract, "$.risk")
	require.NoError(t, err)
	require.Equal(t, "low", v)
}
