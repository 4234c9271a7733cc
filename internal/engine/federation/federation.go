// Package federation exports and imports alleles across engine instances,
// verifying content-hash integrity on import and checking contract
// compatibility before a pool pull crosses domains.
package federation

import (
	"crypto/sha256"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/goccy/go-json"

	"github.com/selfgene/sg/internal/contracts"
	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/phenotype"
	"github.com/selfgene/sg/internal/engine/registry"
	"github.com/selfgene/sg/internal/hexutil"
)

// ExportedAllele is the wire form of an allele offered to, or received
// from, a peer.
type ExportedAllele struct {
	SHA256                string  `json:"sha256"`
	Locus                 string  `json:"locus"`
	Generation            int     `json:"generation"`
	Source                string  `json:"source"`
	Fitness               float64 `json:"fitness"`
	SuccessfulInvocations int64   `json:"successful_invocations"`
	TotalInvocations      int64   `json:"total_invocations"`
}

// FitnessFunc computes an allele's current fitness, matching
// arena.Fitness's signature, so the caller chooses the scoring function.
type FitnessFunc func(a *registry.Allele) float64

// Exchange reads the local registry/phenotype to build exports and
// applies imports back into them.
type Exchange struct {
	registry  *registry.Registry
	phenotype *phenotype.Phenotype
	fitness   FitnessFunc
}

// New constructs an Exchange over the given registry and phenotype.
func New(reg *registry.Registry, pheno *phenotype.Phenotype, fitness FitnessFunc) *Exchange {
	return &Exchange{registry: reg, phenotype: pheno, fitness: fitness}
}

// Export packages every allele registered for locus as an ExportedAllele,
// suitable for a pool push.
func (e *Exchange) Export(locus string) ([]ExportedAllele, error) {
	alleles := e.registry.AllelesForLocus(locus)
	out := make([]ExportedAllele, 0, len(alleles))
	for _, a := range alleles {
		source, ok := e.registry.LoadSource(a.ID)
		if !ok {
			continue
		}
		out = append(out, ExportedAllele{
			SHA256:                string(a.ID),
			Locus:                 a.Locus,
			Generation:            a.Generation,
			Source:                source,
			Fitness:               e.fitness(a),
			SuccessfulInvocations: a.SuccessfulInvocations,
			TotalInvocations:      a.TotalInvocations(),
		})
	}
	return out, nil
}

// Import verifies a peer-supplied allele's integrity (its declared sha256
// must equal hash(source)), registers its source under the stated locus
// preserving the declared generation, and adds the resulting id to the
// locus fallback stack in recessive state.
func (e *Exchange) Import(peer string, exported ExportedAllele) (registry.AlleleID, error) {
	if !hexutil.IsValidDigest(exported.SHA256, sha256.Size) {
		return "", engerr.FederationIntegrity(exported.SHA256)
	}

	computed := registry.Identity(exported.Source)
	if hexutil.Normalize(string(computed)) != hexutil.Normalize(exported.SHA256) {
		return "", engerr.FederationIntegrity(exported.SHA256)
	}

	id, err := e.registry.Register(exported.Source, exported.Locus, exported.Generation, "")
	if err != nil {
		return "", err
	}

	if allele, ok := e.registry.Get(id); ok {
		allele.PeerObservations = append(allele.PeerObservations, registry.PeerObservation{
			Peer:      peer,
			Successes: exported.SuccessfulInvocations,
			Failures:  exported.TotalInvocations - exported.SuccessfulInvocations,
		})
	}

	e.phenotype.AddToFallback(exported.Locus, id)
	return id, nil
}

// Compatible reports whether two contracts' takes/gives metadata blocks
// agree closely enough for a cross-domain pool pull: every required
// (non-optional) field declared in either's takes/gives must appear in
// the other with the same type string.
func Compatible(a, b *contracts.GeneContract) (bool, error) {
	if err := fieldsSatisfy(a.Takes, b.Takes); err != nil {
		return false, err
	}
	if err := fieldsSatisfy(b.Takes, a.Takes); err != nil {
		return false, err
	}
	if err := fieldsSatisfy(a.Gives, b.Gives); err != nil {
		return false, err
	}
	if err := fieldsSatisfy(b.Gives, a.Gives); err != nil {
		return false, err
	}
	return true, nil
}

// fieldsSatisfy checks that every required field in `required` appears in
// `other` with the same declared type.
func fieldsSatisfy(required, other map[string]contracts.FieldSchema) error {
	for name, schema := range required {
		if schema.Optional {
			continue
		}
		otherSchema, ok := other[name]
		if !ok {
			return fmt.Errorf("field %q missing on the other side", name)
		}
		if otherSchema.Type != schema.Type {
			return fmt.Errorf("field %q type mismatch: %s vs %s", name, schema.Type, otherSchema.Type)
		}
	}
	return nil
}

// ProbeField evaluates a JSONPath expression (e.g. "$.risk") against the
// whole contract, marshaled to a generic map first, to spot-check a
// specific field without hand-walking the full compatibility check.
func ProbeField(contract *contracts.GeneContract, path string) (interface{}, error) {
	raw, err := json.Marshal(contract)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return jsonpath.Get(path, generic)
}
