package contracts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/selfgene/sg/internal/engerr"
)

// JSONContractProvider loads contracts from a directory tree of
// *.contract.json files, the serialized form an external .sg parser would
// emit. It substitutes for that parser without reimplementing it: this
// package never tokenizes raw .sg source.
type JSONContractProvider struct {
	genes      map[string]*GeneContract
	pathways   map[string]*PathwayContract
	topologies map[string]*TopologyContract
}

type contractEnvelope struct {
	Kind     string           `json:"kind"`
	Gene     *GeneContract     `json:"gene,omitempty"`
	Pathway  *PathwayContract  `json:"pathway,omitempty"`
	Topology *TopologyContract `json:"topology,omitempty"`
}

// NewJSONContractProvider returns an empty provider ready for Load calls.
func NewJSONContractProvider() *JSONContractProvider {
	return &JSONContractProvider{
		genes:      make(map[string]*GeneContract),
		pathways:   make(map[string]*PathwayContract),
		topologies: make(map[string]*TopologyContract),
	}
}

// LoadDir walks root for *.contract.json files and registers each.
func (p *JSONContractProvider) LoadDir(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".contract.json") {
			return nil
		}
		return p.LoadFile(path)
	})
}

// LoadFile parses a single contract.json envelope and registers it.
func (p *JSONContractProvider) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return engerr.ContractLoad(path, err)
	}

	var env contractEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return engerr.ContractLoad(path, err)
	}

	switch env.Kind {
	case "gene":
		if env.Gene == nil {
			return engerr.ContractLoad(path, fmt.Errorf("kind=gene missing gene body"))
		}
		p.genes[env.Gene.Name] = env.Gene
	case "pathway":
		if env.Pathway == nil {
			return engerr.ContractLoad(path, fmt.Errorf("kind=pathway missing pathway body"))
		}
		p.pathways[env.Pathway.Name] = env.Pathway
	case "topology":
		if env.Topology == nil {
			return engerr.ContractLoad(path, fmt.Errorf("kind=topology missing topology body"))
		}
		p.topologies[env.Topology.Name] = env.Topology
	default:
		return engerr.ContractLoad(path, fmt.Errorf("unknown contract kind %q", env.Kind))
	}

	return nil
}

// PutGene registers a contract directly, bypassing file IO.
func (p *JSONContractProvider) PutGene(c *GeneContract) { p.genes[c.Name] = c }

// PutPathway registers a pathway contract directly.
func (p *JSONContractProvider) PutPathway(c *PathwayContract) { p.pathways[c.Name] = c }

// PutTopology registers a topology contract directly.
func (p *JSONContractProvider) PutTopology(c *TopologyContract) { p.topologies[c.Name] = c }

func (p *JSONContractProvider) Gene(locus string) (*GeneContract, bool) {
	c, ok := p.genes[locus]
	return c, ok
}

func (p *JSONContractProvider) Pathway(name string) (*PathwayContract, bool) {
	c, ok := p.pathways[name]
	return c, ok
}

func (p *JSONContractProvider) Topology(name string) (*TopologyContract, bool) {
	c, ok := p.topologies[name]
	return c, ok
}

var _ ContractProvider = (*JSONContractProvider)(nil)
