// Package regression tracks each allele's peak fitness and flags drops
// against it once an allele has accumulated enough invocations to trust
// the comparison (spec §4.12).
package regression

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/registry"
)

// Severity classifies how far current fitness has fallen from the peak.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityMild   Severity = "mild"
	SeveritySevere Severity = "severe"
)

const (
	mildDropThreshold   = 0.2
	severeDropThreshold = 0.4

	minInvocationsForComparison = 10
)

type peakEntry struct {
	Peak float64 `json:"peak"`
}

// Detector holds peak-fitness memory keyed by allele id, persisted as a
// flat JSON map alongside other session state.
type Detector struct {
	mu   sync.Mutex
	path string

	peaks map[registry.AlleleID]*peakEntry
}

// New constructs a Detector persisted at root/.sg/regression.json.
func New(root string) *Detector {
	return &Detector{
		path:  filepath.Join(root, ".sg", "regression.json"),
		peaks: make(map[registry.AlleleID]*peakEntry),
	}
}

// Record takes an allele's current fitness, updates its peak if
// exceeded, and reports the severity of any drop once the allele has at
// least minInvocationsForComparison invocations.
func (d *Detector) Record(a *registry.Allele, currentFitness float64) Severity {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.peaks[a.ID]
	if !ok {
		entry = &peakEntry{Peak: currentFitness}
		d.peaks[a.ID] = entry
		return SeverityNone
	}

	if currentFitness > entry.Peak {
		entry.Peak = currentFitness
		return SeverityNone
	}

	if a.TotalInvocations() < minInvocationsForComparison {
		return SeverityNone
	}

	drop := entry.Peak - currentFitness
	switch {
	case drop >= severeDropThreshold:
		return SeveritySevere
	case drop >= mildDropThreshold:
		return SeverityMild
	default:
		return SeverityNone
	}
}

// Peak returns the recorded peak fitness for an allele, if any.
func (d *Detector) Peak(id registry.AlleleID) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.peaks[id]
	if !ok {
		return 0, false
	}
	return entry.Peak, true
}

// Save persists peak-fitness memory atomically.
func (d *Detector) Save() error {
	d.mu.Lock()
	snapshot := make(map[registry.AlleleID]*peakEntry, len(d.peaks))
	for id, e := range d.peaks {
		cp := *e
		snapshot[id] = &cp
	}
	d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return engerr.Internal("failed to create regression directory", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return engerr.Internal("failed to encode regression state", err)
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return engerr.Internal("failed to write regression state", err)
	}
	return os.Rename(tmp, d.path)
}

// Load reads persisted peak-fitness memory, if present. A missing file is
// not an error.
func (d *Detector) Load() error {
	raw, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return engerr.Internal("failed to read regression state", err)
	}

	var peaks map[registry.AlleleID]*peakEntry
	if err := json.Unmarshal(raw, &peaks); err != nil {
		return engerr.Internal("failed to decode regression state", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if peaks == nil {
		peaks = make(map[registry.AlleleID]*peakEntry)
	}
	d.peaks = peaks
	return nil
}
