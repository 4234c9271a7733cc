package safety

import "github.com/selfgene/sg/internal/engine/registry"

// NeedsShadow reports whether an allele at a high/critical-risk locus
// must still run against a shadow kernel before going live.
func NeedsShadow(policy RiskPolicy, a *registry.Allele) bool {
	return policy.UseShadowFirst && a.ShadowSuccesses < ShadowThreshold
}

// RecordShadowOutcome applies one shadow execution's result to the
// allele's shadow counter: success increments toward the threshold,
// failure resets it to zero so the allele must re-earn the threshold.
func RecordShadowOutcome(a *registry.Allele, success bool) {
	if success {
		a.ShadowSuccesses++
		return
	}
	a.ShadowSuccesses = 0
}
