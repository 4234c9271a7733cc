package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	r := New(t.TempDir())

	id1, err := r.Register("function execute() {}", "bridge_create", 0, "")
	require.NoError(t, err)

	id2, err := r.Register("function execute() {}", "bridge_create", 0, "")
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Equal(t, Identity("function execute() {}"), id1)

	alleles := r.AllelesForLocus("bridge_create")
	require.Len(t, alleles, 1)
}

func TestRegisterLocusMismatchFails(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Register("same source", "bridge_create", 0, "")
	require.NoError(t, err)

	_, err = r.Register("same source", "vlan_create", 0, "")
	require.Error(t, err)
}

func TestNewAlleleStartsRecessiveWithZeroedCounters(t *testing.T) {
	r := New(t.TempDir())
	id, err := r.Register("source", "bridge_create", 0, "")
	require.NoError(t, err)

	a, ok := r.Get(id)
	require.True(t, ok)
	require.Equal(t, StateRecessive, a.State)
	require.Zero(t, a.TotalInvocations())
}

func TestFitnessWindowCapsAt200(t *testing.T) {
	r := New(t.TempDir())
	id, err := r.Register("source", "bridge_create", 0, "")
	require.NoError(t, err)
	a, _ := r.Get(id)

	for i := 0; i < 250; i++ {
		a.AppendFitnessRecord(FitnessRecord{Timescale: TimescaleImmediate, Success: true})
	}
	require.Len(t, a.FitnessRecords, MaxFitnessRecords)
}

func TestSaveIndexThenLoadIndexRoundTrips(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)
	id, err := r.Register("source", "bridge_create", 0, "")
	require.NoError(t, err)

	a, _ := r.Get(id)
	a.RecordSuccess()
	a.AppendFitnessRecord(FitnessRecord{Timescale: TimescaleConvergence, Success: true, SourceLocus: "health_check"})

	require.NoError(t, r.SaveIndex())
	require.FileExists(t, filepath.Join(dir, ".sg", "registry", "registry.json"))

	reloaded := New(dir)
	require.NoError(t, reloaded.LoadIndex())

	got, ok := reloaded.Get(id)
	require.True(t, ok)
	require.EqualValues(t, 1, got.SuccessfulInvocations)
	require.Len(t, got.FitnessRecords, 1)
}

func TestLoadSourceRecoversMissingBlobGracefully(t *testing.T) {
	r := New(t.TempDir())
	_, ok := r.LoadSource("deadbeef")
	require.False(t, ok)
}

func TestTotalInvocationsInvariant(t *testing.T) {
	r := New(t.TempDir())
	id, err := r.Register("source", "bridge_create", 0, "")
	require.NoError(t, err)
	a, _ := r.Get(id)

	a.RecordSuccess()
	a.RecordSuccess()
	a.RecordFailure()

	require.Equal(t, a.SuccessfulInvocations+a.FailedInvocations, a.TotalInvocations())
	require.Equal(t, 1, a.ConsecutiveFailures)
}
