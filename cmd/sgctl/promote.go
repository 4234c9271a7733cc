package main

import (
	"fmt"

	"github.com/selfgene/sg/internal/engine/registry"
	"github.com/selfgene/sg/internal/hexutil"
)

// handlePromote makes an already-registered allele dominant for its
// locus. The allele id is accepted as typed — with or without a "0x"
// prefix, either case — since users usually paste it from `sgctl
// lineage` or `sgctl status` output rather than type it by hand.
func handlePromote(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: sgctl promote <locus> <allele-id>")
	}
	locus := args[0]
	id := registry.AlleleID(hexutil.Normalize(args[1]))

	a, err := newApp()
	if err != nil {
		return err
	}

	allele, ok := a.registry.Get(id)
	if !ok {
		return fmt.Errorf("no allele %s registered", id)
	}
	if allele.Locus != locus {
		return fmt.Errorf("allele %s belongs to locus %q, not %q", id, allele.Locus, locus)
	}

	a.phenotype.Promote(locus, id)
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	return a.phenotype.Save()
}
