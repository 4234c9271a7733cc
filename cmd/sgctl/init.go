package main

import "fmt"

// handleInit ensures the project layout and seeds any bundled
// genes/*.gene.js sources into the registry; newApp does both, so this
// command exists mainly to give a first-time user visible confirmation
// and a stable place to report what got seeded.
func handleInit(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	if err := a.phenotype.Save(); err != nil {
		return err
	}
	fmt.Printf("initialized project at %s\n", a.cfg.Engine.ProjectRoot)
	fmt.Printf("genes dir:     %s\n", a.cfg.Engine.GenesDir)
	fmt.Printf("fixtures dir:  %s\n", a.cfg.Engine.FixturesDir)
	fmt.Printf("contracts dir: %s\n", a.cfg.Engine.ContractsDir)
	for _, al := range a.registry.All() {
		fmt.Printf("seeded locus %-20s allele %s\n", al.Locus, al.ID)
	}
	return nil
}
