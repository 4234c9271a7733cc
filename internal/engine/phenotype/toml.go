package phenotype

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/registry"
)

// Load reads the phenotype.toml file, if present, repopulating the
// locus/fusion tables. A missing file is not an error (fresh project).
// Reload must preserve stack order exactly, which this reader honors by
// parsing fallback as an ordered list literal.
func (p *Phenotype) Load() error {
	raw, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return engerr.Internal("failed to read phenotype file", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.loci = make(map[string]*LocusEntry)
	p.fusions = make(map[string]*FusionEntry)

	var section string
	var lociKey, fusionKey string

	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			header := strings.Trim(line, "[]")
			switch {
			case strings.HasPrefix(header, "locus."):
				section = "locus"
				lociKey = strings.TrimPrefix(header, "locus.")
				p.loci[lociKey] = &LocusEntry{}
			case strings.HasPrefix(header, "pathway_fusion."):
				section = "fusion"
				fusionKey = strings.TrimPrefix(header, "pathway_fusion.")
				p.fusions[fusionKey] = &FusionEntry{}
			default:
				section = ""
			}
			continue
		}

		key, value, ok := splitAssignment(line)
		if !ok {
			continue
		}

		switch section {
		case "locus":
			entry := p.loci[lociKey]
			switch key {
			case "dominant":
				entry.Dominant = registry.AlleleID(unquote(value))
			case "fallback":
				entry.Fallback = parseIDList(value)
			}
		case "fusion":
			entry := p.fusions[fusionKey]
			switch key {
			case "fused_sha":
				entry.FusedSha = registry.AlleleID(unquote(value))
			case "fused_fallback":
				entry.FusedFallback = parseIDList(value)
			case "composition_fingerprint":
				entry.CompositionFingerprint = unquote(value)
			}
		}
	}

	return scanner.Err()
}

func splitAssignment(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func unquote(s string) string {
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}

func parseIDList(value string) []registry.AlleleID {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "[")
	value = strings.TrimSuffix(value, "]")
	if strings.TrimSpace(value) == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	out := make([]registry.AlleleID, 0, len(parts))
	for _, part := range parts {
		id := unquote(strings.TrimSpace(part))
		if id == "" {
			continue
		}
		out = append(out, registry.AlleleID(id))
	}
	return out
}
