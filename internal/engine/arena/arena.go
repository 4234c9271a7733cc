// Package arena scores alleles over three temporal scales and decides
// promotion/demotion. Fitness computation follows spec §4.3 exactly;
// nothing here touches persistence, which stays the Registry's job.
package arena

import (
	"github.com/selfgene/sg/internal/engine/registry"
)

const (
	weightImmediate   = 0.30
	weightConvergence = 0.50
	weightResilience  = 0.20

	convergenceDecayFactor = 0.8

	immediateFloor = 10

	promotionMinInvocations = 50
	promotionMinMargin      = 0.05

	demotionConsecutiveFailures = 3

	distributedMinPeerInvocations = 10
	distributedLocalWeight        = 0.7
	distributedPeerWeight         = 0.3

	// timescaleTrustMinimum is the per-timescale record count below which
	// convergence's retroactive decay is not yet trusted and is skipped
	// (spec §9 open question). It does not gate the convergence/resilience
	// scores themselves: those follow successes/total as soon as any
	// records exist, defaulting to 1.0 only when records are absent.
	timescaleTrustMinimum = 30
)

// Fitness computes the allele's weighted three-timescale score, including
// retroactive decay and the fresh-allele fallback.
func Fitness(a *registry.Allele) float64 {
	total := a.TotalInvocations()
	if total == 0 {
		return 0.0
	}

	if len(a.FitnessRecords) == 0 {
		return float64(a.SuccessfulInvocations) / float64(total)
	}

	immediate := float64(a.SuccessfulInvocations) / float64(maxInt64(total, immediateFloor))

	convergenceSuccesses, convergenceTotal := countByTimescale(a, registry.TimescaleConvergence)
	convergenceScore := 1.0
	if convergenceTotal > 0 {
		convergenceScore = float64(convergenceSuccesses) / float64(convergenceTotal)
	}

	resilienceSuccesses, resilienceTotal := countByTimescale(a, registry.TimescaleResilience)
	resilienceScore := 1.0
	if resilienceTotal > 0 {
		resilienceScore = float64(resilienceSuccesses) / float64(resilienceTotal)
	}

	decay := 1.0
	if convergenceTotal >= timescaleTrustMinimum {
		for _, r := range a.FitnessRecords {
			if r.Timescale == registry.TimescaleConvergence && !r.Success {
				decay -= (1 - convergenceDecayFactor)
			}
		}
		if decay < 0 {
			decay = 0
		}
	}
	immediate *= decay

	return weightImmediate*immediate + weightConvergence*convergenceScore + weightResilience*resilienceScore
}

// DistributedFitness blends local fitness with peer-reported outcomes once
// the aggregate peer invocation count reaches the trust floor.
func DistributedFitness(a *registry.Allele) float64 {
	local := Fitness(a)

	var peerSuccesses, peerTotal int64
	for _, obs := range a.PeerObservations {
		peerSuccesses += obs.Successes
		peerTotal += obs.Successes + obs.Failures
	}

	if peerTotal < distributedMinPeerInvocations {
		return local
	}

	return distributedLocalWeight*local + distributedPeerWeight*(float64(peerSuccesses)/float64(peerTotal))
}

func countByTimescale(a *registry.Allele, ts registry.Timescale) (successes, total int64) {
	for _, r := range a.FitnessRecords {
		if r.Timescale != ts {
			continue
		}
		total++
		if r.Success {
			successes++
		}
	}
	return successes, total
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// ShouldPromote reports whether candidate should become the stack's
// dominant allele, given the current dominant (nil if none).
func ShouldPromote(candidate, dominant *registry.Allele) bool {
	if candidate.TotalInvocations() < promotionMinInvocations {
		return false
	}
	if dominant == nil {
		return true
	}
	return Fitness(candidate)-Fitness(dominant) >= promotionMinMargin
}

// ShouldDemote reports whether an allele has accumulated enough
// consecutive failures to be marked deprecated and skipped by selection.
func ShouldDemote(a *registry.Allele) bool {
	return a.ConsecutiveFailures >= demotionConsecutiveFailures
}
