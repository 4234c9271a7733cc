package main

import (
	"github.com/goccy/go-json"

	"github.com/selfgene/sg/internal/contracts"
	"github.com/selfgene/sg/internal/engine/topology"
)

// networkResourceMappers is the resource-type -> Mapper table for the
// bundled network domain's topology contracts: every resource becomes a
// single gene call against the matching locus, its resolved properties
// marshaled straight through as that locus's input.
func networkResourceMappers() map[string]topology.Mapper {
	return map[string]topology.Mapper{
		"bridge": geneMapper("bridge_create"),
		"vlan":   geneMapper("vlan_create"),
		"bond":   geneMapper("bond_create"),
	}
}

func geneMapper(locus string) topology.Mapper {
	return func(resource contracts.ResourceDecl, resolvedProperties map[string]interface{}) (topology.Step, error) {
		inputJSON, err := json.Marshal(resolvedProperties)
		if err != nil {
			return topology.Step{}, err
		}
		return topology.Step{
			ResourceName: resource.Name,
			Action:       topology.ActionGene,
			Target:       locus,
			InputJSON:    string(inputJSON),
		}, nil
	}
}
