// Package fusion tracks reinforcement of a pathway's step sequence: once
// the same ordered allele composition succeeds enough times in a row,
// the Pathway Engine requests a single fused gene replacing the whole
// sequence.
package fusion

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/selfgene/sg/internal/engine/registry"
)

// ReinforcementThreshold is the consecutive-match count at which a
// pathway's composition becomes eligible for fusion.
const ReinforcementThreshold = 10

type track struct {
	fingerprint string
	constituents []registry.AlleleID
	count       int
}

// Engine holds one reinforcement track per pathway name.
type Engine struct {
	mu     sync.Mutex
	tracks map[string]*track
}

// New constructs an empty Fusion Engine.
func New() *Engine {
	return &Engine{tracks: make(map[string]*track)}
}

// Fingerprint computes the composition fingerprint for an ordered allele
// id sequence: a sha256 digest of the colon-joined ids.
func Fingerprint(usedIDs []registry.AlleleID) string {
	parts := make([]string, len(usedIDs))
	for i, id := range usedIDs {
		parts[i] = string(id)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// RecordSuccess reinforces name's track with usedIDs' composition
// fingerprint. A matching fingerprint increments the count; a changed
// composition replaces the track and resets the count to 1. The second
// return value is true iff the track has now reached
// ReinforcementThreshold, in which case the fingerprint should be used
// to request a fused gene.
func (e *Engine) RecordSuccess(name string, usedIDs []registry.AlleleID) (fingerprint string, reachedThreshold bool) {
	fp := Fingerprint(usedIDs)

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tracks[name]
	if !ok || t.fingerprint != fp {
		t = &track{fingerprint: fp, constituents: append([]registry.AlleleID{}, usedIDs...), count: 1}
		e.tracks[name] = t
	} else {
		t.count++
	}

	return fp, t.count >= ReinforcementThreshold
}

// RecordFailure decomposes name's track: any fused-execution exception
// resets the reinforcement count, since the composition is no longer
// trustworthy as a fusion candidate.
func (e *Engine) RecordFailure(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tracks, name)
}

// Count returns name's current reinforcement count, for diagnostics and
// tests.
func (e *Engine) Count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tracks[name]
	if !ok {
		return 0
	}
	return t.count
}
