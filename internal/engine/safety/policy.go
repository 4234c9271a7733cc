package safety

// RiskPolicy is one risk tier's blast-radius decision.
type RiskPolicy struct {
	UseTransaction bool
	UseShadowFirst bool
}

// policyTable is the blast-radius policy (spec §4.4): none runs bare,
// low/medium get a transaction, high/critical also shadow first.
var policyTable = map[string]RiskPolicy{
	"none":     {UseTransaction: false, UseShadowFirst: false},
	"low":      {UseTransaction: true, UseShadowFirst: false},
	"medium":   {UseTransaction: true, UseShadowFirst: false},
	"high":     {UseTransaction: true, UseShadowFirst: true},
	"critical": {UseTransaction: true, UseShadowFirst: true},
}

// PolicyFor returns the blast-radius policy for a risk level, defaulting
// to the low-risk policy (transaction, no shadow) for an unrecognized or
// empty level — loci default to "low" risk when a contract omits it.
func PolicyFor(risk string) RiskPolicy {
	if p, ok := policyTable[risk]; ok {
		return p
	}
	return policyTable["low"]
}

// ShadowThreshold is the number of consecutive successful shadow
// executions required before a high/critical allele goes live.
const ShadowThreshold = 3
