package arena

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selfgene/sg/internal/engine/registry"
)

func TestFitnessZeroInvocationsIsZero(t *testing.T) {
	a := &registry.Allele{}
	require.Equal(t, 0.0, Fitness(a))
}

func TestFitnessFallsBackToPlainRatioWithNoRecords(t *testing.T) {
	a := &registry.Allele{SuccessfulInvocations: 3, FailedInvocations: 1}
	require.InDelta(t, 0.75, Fitness(a), 1e-9)
}

func TestFitnessUsesFloorOfTenForImmediateScore(t *testing.T) {
	a := &registry.Allele{
		SuccessfulInvocations: 5,
		FailedInvocations:     0,
		FitnessRecords: []registry.FitnessRecord{
			{Timescale: registry.TimescaleImmediate, Success: true},
		},
	}
	// immediate = 5/max(5,10) = 0.5; convergence/resilience default to 1.0
	// since no records of those timescales exist.
	want := weightImmediate*0.5 + weightConvergence*1.0 + weightResilience*1.0
	require.InDelta(t, want, Fitness(a), 1e-9)
}

func TestFitnessConvergenceScoreFollowsRatioBelowThirtyRecords(t *testing.T) {
	a := &registry.Allele{
		SuccessfulInvocations: 10,
		FitnessRecords: []registry.FitnessRecord{
			{Timescale: registry.TimescaleConvergence, Success: false},
			{Timescale: registry.TimescaleConvergence, Success: true},
		},
	}
	// Only 2 convergence records: below the 30-record trust minimum, so
	// retroactive decay stays off, but the convergence score itself still
	// follows successes/total (1 of 2) as soon as any records exist.
	want := weightImmediate*1.0 + weightConvergence*0.5 + weightResilience*1.0
	require.InDelta(t, want, Fitness(a), 1e-9)
}

func TestFitnessConvergenceScoreDropsOnSingleFailureBeforeTrust(t *testing.T) {
	a := &registry.Allele{
		SuccessfulInvocations: 10,
		FitnessRecords: []registry.FitnessRecord{
			{Timescale: registry.TimescaleConvergence, Success: true},
		},
	}
	healthy := Fitness(a)

	a.FitnessRecords = append(a.FitnessRecords, registry.FitnessRecord{Timescale: registry.TimescaleConvergence, Success: false})
	afterFailure := Fitness(a)

	// Matches the literal run-once/inject-failure/run-once-more scenario:
	// fitness must strictly decrease even with only two convergence
	// records, well below the trust minimum for decay.
	require.Less(t, afterFailure, healthy)
}

func TestFitnessAppliesConvergenceDecayOnceTrusted(t *testing.T) {
	records := make([]registry.FitnessRecord, 0, 30)
	records = append(records, registry.FitnessRecord{Timescale: registry.TimescaleConvergence, Success: false})
	for i := 0; i < 29; i++ {
		records = append(records, registry.FitnessRecord{Timescale: registry.TimescaleConvergence, Success: true})
	}
	a := &registry.Allele{SuccessfulInvocations: 10, FitnessRecords: records}
	// immediate = 10/10 = 1.0, decayed by one convergence failure: *0.8
	// convergence score = 29 successes / 30 total
	want := weightImmediate*0.8 + weightConvergence*(29.0/30.0) + weightResilience*1.0
	require.InDelta(t, want, Fitness(a), 1e-9)
}

func TestFitnessDecayFloorsAtZero(t *testing.T) {
	records := make([]registry.FitnessRecord, 0, 30)
	for i := 0; i < 30; i++ {
		records = append(records, registry.FitnessRecord{Timescale: registry.TimescaleConvergence, Success: false})
	}
	a := &registry.Allele{SuccessfulInvocations: 10, FitnessRecords: records}
	require.InDelta(t, weightConvergence*0.0+weightResilience*1.0, Fitness(a), 1e-9)
}

func TestDistributedFitnessIgnoresPeersBelowFloor(t *testing.T) {
	a := &registry.Allele{
		SuccessfulInvocations: 10,
		PeerObservations: []registry.PeerObservation{
			{Peer: "p1", Successes: 1, Failures: 0},
		},
	}
	require.Equal(t, Fitness(a), DistributedFitness(a))
}

func TestDistributedFitnessBlendsAtFloor(t *testing.T) {
	a := &registry.Allele{
		SuccessfulInvocations: 10,
		PeerObservations: []registry.PeerObservation{
			{Peer: "p1", Successes: 8, Failures: 2},
		},
	}
	want := distributedLocalWeight*Fitness(a) + distributedPeerWeight*0.8
	require.InDelta(t, want, DistributedFitness(a), 1e-9)
}

func TestShouldPromoteRequiresMinInvocations(t *testing.T) {
	candidate := &registry.Allele{SuccessfulInvocations: 49}
	require.False(t, ShouldPromote(candidate, nil))
}

func TestShouldPromoteWithNoDominant(t *testing.T) {
	candidate := &registry.Allele{SuccessfulInvocations: 50}
	require.True(t, ShouldPromote(candidate, nil))
}

func TestShouldPromoteRequiresMargin(t *testing.T) {
	candidate := &registry.Allele{SuccessfulInvocations: 100, FailedInvocations: 10}
	dominant := &registry.Allele{SuccessfulInvocations: 100, FailedInvocations: 9}
	require.False(t, ShouldPromote(candidate, dominant))

	strongCandidate := &registry.Allele{SuccessfulInvocations: 100}
	require.True(t, ShouldPromote(strongCandidate, dominant))
}

func TestShouldDemoteAtThreeConsecutiveFailures(t *testing.T) {
	a := &registry.Allele{ConsecutiveFailures: 2}
	require.False(t, ShouldDemote(a))
	a.ConsecutiveFailures = 3
	require.True(t, ShouldDemote(a))
}

func TestFitnessWithCacheNilCacheComputesDirectly(t *testing.T) {
	calls := 0
	v := FitnessWithCache(context.Background(), nil, "abc", func() float64 {
		calls++
		return 0.42
	})
	require.Equal(t, 0.42, v)
	require.Equal(t, 1, calls)
}
