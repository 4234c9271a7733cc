// Package phenotype holds the per-locus dominance/fallback stack and the
// per-pathway fusion state, persisted as a structured TOML-like file.
package phenotype

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/registry"
)

// LocusEntry is one locus's dominance/fallback stack.
type LocusEntry struct {
	Dominant registry.AlleleID
	Fallback []registry.AlleleID
}

// FusionEntry is the phenotype's record of a pathway's fused gene, if any.
type FusionEntry struct {
	FusedSha               registry.AlleleID
	FusedFallback          []registry.AlleleID
	CompositionFingerprint string
}

// Phenotype is the mutable mapping from locus to dominance stack and from
// pathway name to fusion state.
type Phenotype struct {
	mu sync.RWMutex

	path string

	loci    map[string]*LocusEntry
	fusions map[string]*FusionEntry
}

// New constructs a Phenotype persisted at root/phenotype.toml.
func New(root string) *Phenotype {
	return &Phenotype{
		path:    filepath.Join(root, "phenotype.toml"),
		loci:    make(map[string]*LocusEntry),
		fusions: make(map[string]*FusionEntry),
	}
}

// GetStack returns the ordered selection stack `[dominant, *fallback]` for
// a locus, or nil if the locus is unknown.
func (p *Phenotype) GetStack(locus string) []registry.AlleleID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.loci[locus]
	if !ok {
		return nil
	}

	stack := make([]registry.AlleleID, 0, 1+len(entry.Fallback))
	if entry.Dominant != "" {
		stack = append(stack, entry.Dominant)
	}
	stack = append(stack, entry.Fallback...)
	return stack
}

// Promote sets id as dominant for locus, demoting the prior dominant (if
// any and different) to the head of the fallback list. id is removed from
// the fallback list first so the invariant dominant ∉ fallback holds.
func (p *Phenotype) Promote(locus string, id registry.AlleleID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := p.entryLocked(locus)
	oldDominant := entry.Dominant

	entry.Fallback = removeID(entry.Fallback, id)
	entry.Dominant = id

	if oldDominant != "" && oldDominant != id {
		entry.Fallback = prependUnique(entry.Fallback, oldDominant)
	}
}

// AddToFallback appends id to locus's fallback list if it is not already
// present and is not the current dominant.
func (p *Phenotype) AddToFallback(locus string, id registry.AlleleID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := p.entryLocked(locus)
	if entry.Dominant == id {
		return
	}
	entry.Fallback = appendUnique(entry.Fallback, id)
}

func (p *Phenotype) entryLocked(locus string) *LocusEntry {
	entry, ok := p.loci[locus]
	if !ok {
		entry = &LocusEntry{}
		p.loci[locus] = entry
	}
	return entry
}

func removeID(list []registry.AlleleID, id registry.AlleleID) []registry.AlleleID {
	out := make([]registry.AlleleID, 0, len(list))
	for _, existing := range list {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func appendUnique(list []registry.AlleleID, id registry.AlleleID) []registry.AlleleID {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

func prependUnique(list []registry.AlleleID, id registry.AlleleID) []registry.AlleleID {
	filtered := removeID(list, id)
	return append([]registry.AlleleID{id}, filtered...)
}

// SetFused records name's fused gene and fallback, annotated with the
// fusion fingerprint.
func (p *Phenotype) SetFused(name string, fusedSha registry.AlleleID, fallback []registry.AlleleID, fingerprint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fusions[name] = &FusionEntry{
		FusedSha:               fusedSha,
		FusedFallback:          append([]registry.AlleleID{}, fallback...),
		CompositionFingerprint: fingerprint,
	}
}

// ClearFused removes name's fusion entry (decomposition).
func (p *Phenotype) ClearFused(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.fusions, name)
}

// GetFused returns name's fusion entry, if any.
func (p *Phenotype) GetFused(name string) (*FusionEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.fusions[name]
	return e, ok
}

// Save persists the phenotype as a minimal TOML file: one [locus.<name>]
// table per locus, one [pathway_fusion.<name>] table per fusion entry.
// There is no TOML library in the teacher corpus (see DESIGN.md); this
// writer/reader pair covers exactly the shape this file needs and nothing
// more.
func (p *Phenotype) Save() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lociNames := make([]string, 0, len(p.loci))
	for name := range p.loci {
		lociNames = append(lociNames, name)
	}
	sort.Strings(lociNames)

	fusionNames := make([]string, 0, len(p.fusions))
	for name := range p.fusions {
		fusionNames = append(fusionNames, name)
	}
	sort.Strings(fusionNames)

	var b []byte
	for _, name := range lociNames {
		entry := p.loci[name]
		b = append(b, []byte(fmt.Sprintf("[locus.%s]\n", name))...)
		b = append(b, []byte(fmt.Sprintf("dominant = %q\n", string(entry.Dominant)))...)
		b = append(b, []byte(fmt.Sprintf("fallback = %s\n\n", idListLiteral(entry.Fallback)))...)
	}
	for _, name := range fusionNames {
		entry := p.fusions[name]
		b = append(b, []byte(fmt.Sprintf("[pathway_fusion.%s]\n", name))...)
		b = append(b, []byte(fmt.Sprintf("fused_sha = %q\n", string(entry.FusedSha)))...)
		b = append(b, []byte(fmt.Sprintf("fused_fallback = %s\n", idListLiteral(entry.FusedFallback)))...)
		b = append(b, []byte(fmt.Sprintf("composition_fingerprint = %q\n\n", entry.CompositionFingerprint))...)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return engerr.Internal("failed to create phenotype directory", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return engerr.Internal("failed to write phenotype file", err)
	}
	return os.Rename(tmp, p.path)
}

func idListLiteral(ids []registry.AlleleID) string {
	s := "["
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%q", string(id))
	}
	return s + "]"
}
