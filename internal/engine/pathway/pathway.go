// Package pathway runs ordered sequences of locus/composed/for/
// conditional steps, with fusion-aware execution: a reinforced
// composition is replaced by a single fused gene once the Fusion Engine
// reports its threshold reached.
package pathway

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/selfgene/sg/internal/contracts"
	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/fusion"
	"github.com/selfgene/sg/internal/engine/mutation"
	"github.com/selfgene/sg/internal/engine/phenotype"
	"github.com/selfgene/sg/internal/engine/refs"
	"github.com/selfgene/sg/internal/engine/registry"
)

// Runner is the slice of the orchestrator a pathway needs: re-entering
// locus selection, and executing one already-chosen allele directly (for
// fused-gene execution, which bypasses the normal dominance stack).
type Runner interface {
	ExecuteLocus(ctx context.Context, locus, inputJSON string) (output, usedID string, err error)
	ExecuteAllele(ctx context.Context, locus string, id registry.AlleleID, inputJSON string) (output string, err error)
}

// Engine runs pathway contracts.
type Engine struct {
	contracts contracts.ContractProvider
	registry  *registry.Registry
	phenotype *phenotype.Phenotype
	fusion    *fusion.Engine
	mutation  mutation.Engine
	runner    Runner
}

// New constructs a pathway Engine.
func New(cp contracts.ContractProvider, reg *registry.Registry, pheno *phenotype.Phenotype, fe *fusion.Engine, me mutation.Engine, runner Runner) *Engine {
	return &Engine{contracts: cp, registry: reg, phenotype: pheno, fusion: fe, mutation: me, runner: runner}
}

// ValidateDependencies checks that every `step N needs step M` declares
// M < N and both indices exist.
func ValidateDependencies(contract *contracts.PathwayContract) error {
	n := len(contract.Steps)
	for _, edge := range contract.Requires {
		if edge.Step < 0 || edge.Step >= n || edge.Needs < 0 || edge.Needs >= n {
			return engerr.New(engerr.CodeValidation, fmt.Sprintf("pathway %q: dependency references out-of-range step", contract.Name), 400)
		}
		if edge.Needs >= edge.Step {
			return engerr.New(engerr.CodeValidation, fmt.Sprintf("pathway %q: step %d needs step %d, which is not earlier", contract.Name, edge.Step, edge.Needs), 400)
		}
	}
	return nil
}

// Run executes name against inputJSON, returning the ordered list of
// step outputs. Before iterating steps it asks the Fusion Engine for a
// standing fused gene; a successful fused run short-circuits
// step-by-step execution. A fused exception decomposes the pathway
// (clearing its fusion entry) and falls back to running every step.
func (e *Engine) Run(ctx context.Context, name, inputJSON string) ([]string, error) {
	contract, ok := e.contracts.Pathway(name)
	if !ok {
		return nil, engerr.NotFound("pathway", name)
	}
	if err := ValidateDependencies(contract); err != nil {
		return nil, err
	}

	if fused, ok := e.phenotype.GetFused(name); ok {
		output, err := e.runner.ExecuteAllele(ctx, firstLocus(contract), fused.FusedSha, inputJSON)
		if err == nil {
			return []string{output}, nil
		}
		e.fusion.RecordFailure(name)
		e.phenotype.ClearFused(name)
	}

	stepOutputs := make([]string, len(contract.Steps))
	usedIDs := make([]registry.AlleleID, 0, len(contract.Steps))

	for i := range contract.Steps {
		out, ids, err := e.runStep(ctx, &contract.Steps[i], inputJSON, stepOutputs)
		if err != nil {
			e.fusion.RecordFailure(name)
			return nil, engerr.PathwayFailure(name, err)
		}
		stepOutputs[i] = out
		usedIDs = append(usedIDs, ids...)
	}

	if len(usedIDs) > 0 {
		if fp, reached := e.fusion.RecordSuccess(name, usedIDs); reached {
			e.requestFusion(ctx, name, contract, fp, usedIDs)
		}
	}

	return stepOutputs, nil
}

func firstLocus(contract *contracts.PathwayContract) string {
	for _, step := range contract.Steps {
		if step.Kind == contracts.StepKindLocus {
			return step.Target
		}
	}
	if len(contract.Steps) > 0 {
		return contract.Steps[0].Target
	}
	return contract.Name
}

func (e *Engine) runStep(ctx context.Context, step *contracts.PathwayStep, inputJSON string, priorOutputs []string) (output string, usedIDs []registry.AlleleID, err error) {
	switch step.Kind {
	case contracts.StepKindLocus:
		resolved := refs.ResolveStepParams(step.Params, inputJSON)
		stepInput, merr := json.Marshal(resolved)
		if merr != nil {
			return "", nil, merr
		}
		out, usedID, rerr := e.runner.ExecuteLocus(ctx, step.Target, string(stepInput))
		if rerr != nil {
			return "", nil, rerr
		}
		return out, []registry.AlleleID{registry.AlleleID(usedID)}, nil

	case contracts.StepKindComposed:
		resolved := refs.ResolveStepParams(step.Params, inputJSON)
		stepInput, merr := json.Marshal(resolved)
		if merr != nil {
			return "", nil, merr
		}
		outs, rerr := e.Run(ctx, step.Target, string(stepInput))
		if rerr != nil {
			return "", nil, rerr
		}
		combined, merr := json.Marshal(outs)
		if merr != nil {
			return "", nil, merr
		}
		return string(combined), nil, nil

	case contracts.StepKindFor:
		return e.runForStep(ctx, step, inputJSON)

	case contracts.StepKindConditional:
		return e.runConditionalStep(ctx, step, inputJSON, priorOutputs)

	default:
		return "", nil, engerr.New(engerr.CodeValidation, fmt.Sprintf("unknown pathway step kind %q", step.Kind), 400)
	}
}

func (e *Engine) runForStep(ctx context.Context, step *contracts.PathwayStep, inputJSON string) (string, []registry.AlleleID, error) {
	iterable, ok := refs.ResolveRef(step.OverRef, inputJSON)
	if !ok {
		return "[]", nil, nil
	}
	items, ok := iterable.([]interface{})
	if !ok {
		return "", nil, engerr.New(engerr.CodeValidation, fmt.Sprintf("for-step over %q is not a list", step.OverRef), 400)
	}

	var base map[string]interface{}
	if err := json.Unmarshal([]byte(inputJSON), &base); err != nil {
		base = make(map[string]interface{})
	}

	outputs := make([]string, 0, len(items))
	usedIDs := make([]registry.AlleleID, 0, len(items))
	for _, item := range items {
		scope := make(map[string]interface{}, len(base)+1)
		for k, v := range base {
			scope[k] = v
		}
		scope[step.LoopVar] = item

		scopeJSON, err := json.Marshal(scope)
		if err != nil {
			return "", nil, err
		}

		out, ids, err := e.runStep(ctx, step.Body, string(scopeJSON), nil)
		if err != nil {
			return "", nil, err
		}
		outputs = append(outputs, out)
		usedIDs = append(usedIDs, ids...)
	}

	combined, err := json.Marshal(outputs)
	if err != nil {
		return "", nil, err
	}
	return string(combined), usedIDs, nil
}

func (e *Engine) runConditionalStep(ctx context.Context, step *contracts.PathwayStep, inputJSON string, priorOutputs []string) (string, []registry.AlleleID, error) {
	if step.FromStep < 0 || step.FromStep >= len(priorOutputs) {
		return "", nil, nil
	}
	fieldValue, ok := refs.ResolveRef(step.Field, priorOutputs[step.FromStep])
	if !ok {
		return "", nil, nil
	}

	for _, branch := range step.Branches {
		if fmt.Sprintf("%v", branch.Value) == fmt.Sprintf("%v", fieldValue) {
			return e.runStep(ctx, branch.Body, inputJSON, priorOutputs)
		}
	}
	// No matching branch is a no-op.
	return "", nil, nil
}

func (e *Engine) requestFusion(ctx context.Context, name string, contract *contracts.PathwayContract, fingerprint string, usedIDs []registry.AlleleID) {
	sources := make([]string, 0, len(usedIDs))
	loci := make([]string, 0, len(usedIDs))
	for i, id := range usedIDs {
		src, ok := e.registry.LoadSource(id)
		if !ok {
			return
		}
		sources = append(sources, src)
		if i < len(contract.Steps) {
			loci = append(loci, contract.Steps[i].Target)
		}
	}

	fusedSource, err := e.mutation.GenerateFused(ctx, name, sources, loci)
	if err != nil {
		return
	}

	parent := usedIDs[0]
	parentAllele, _ := e.registry.Get(parent)
	generation := 0
	if parentAllele != nil {
		generation = parentAllele.Generation + 1
	}

	fusedID, err := e.registry.Register(fusedSource, firstLocus(contract), generation, parent)
	if err != nil {
		return
	}
	e.phenotype.SetFused(name, fusedID, usedIDs, fingerprint)
}
