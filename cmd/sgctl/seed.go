package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/selfgene/sg/internal/engine/phenotype"
	"github.com/selfgene/sg/internal/engine/registry"
)

// geneFileSuffix is the extension a seed gene source file carries under
// the genes directory, matching what the registry itself writes back out
// under .sg/registry/sources.
const geneFileSuffix = ".gene.js"

// seedGenes registers every `<locus>.gene.js` file under genesDir as a
// generation-0 allele and promotes it dominant for loci with no existing
// dominance stack. Registration is idempotent (same content hashes to the
// same allele id), so this is safe to run on every invocation rather than
// only at `sgctl init`.
func seedGenes(genesDir string, reg *registry.Registry, pheno *phenotype.Phenotype) error {
	entries, err := os.ReadDir(genesDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read genes dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), geneFileSuffix) {
			continue
		}
		locus := strings.TrimSuffix(entry.Name(), geneFileSuffix)

		raw, err := os.ReadFile(filepath.Join(genesDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read seed gene %s: %w", entry.Name(), err)
		}

		id, err := reg.Register(string(raw), locus, 0, "")
		if err != nil {
			return fmt.Errorf("register seed gene %s: %w", entry.Name(), err)
		}

		if len(pheno.GetStack(locus)) == 0 {
			pheno.Promote(locus, id)
		}
	}
	return nil
}
