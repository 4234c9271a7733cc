// Package topology decomposes a topology contract's resource graph into
// an ordered sequence of executable steps (Kahn's algorithm over the
// dependency edges implied by resource references), then runs that
// sequence against the engine.
package topology

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/selfgene/sg/internal/contracts"
	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/refs"
)

// StepAction discriminates how a decomposed resource should be realized.
type StepAction string

const (
	ActionPathway  StepAction = "pathway"
	ActionGene     StepAction = "gene"
	ActionLoopGene StepAction = "loop_gene"
)

// Step is one decomposed unit of topology execution.
type Step struct {
	ResourceName string
	Action       StepAction
	Target       string
	InputJSON    string
	LoopItems    []interface{}
}

// Mapper turns one resolved resource declaration into a Step. The
// resource-type -> Mapper table is domain-supplied; the engine never
// hardcodes what a "bridge" or "bond" is.
type Mapper func(resource contracts.ResourceDecl, resolvedProperties map[string]interface{}) (Step, error)

// Runner is the slice of the orchestrator a topology needs to run its
// decomposed steps.
type Runner interface {
	ExecuteLocus(ctx context.Context, locus, inputJSON string) (output, usedID string, err error)
	RunPathway(ctx context.Context, name, inputJSON string) ([]string, error)
}

// Scheduler is the slice of the Verify Scheduler a topology needs to
// arm its own contract-level verify block once execution succeeds.
type Scheduler interface {
	Schedule(ctx context.Context, steps []contracts.VerifyStep, originatingInputJSON string) error
}

// Engine decomposes and executes topology contracts.
type Engine struct {
	contracts contracts.ContractProvider
	mappers   map[string]Mapper
	runner    Runner
	scheduler Scheduler
}

// New constructs a topology Engine with a resource-type -> Mapper table.
func New(cp contracts.ContractProvider, mappers map[string]Mapper, runner Runner) *Engine {
	return &Engine{contracts: cp, mappers: mappers, runner: runner}
}

// SetScheduler wires the Verify Scheduler in after construction, since
// the orchestrator builds its topology engine before its scheduler.
func (e *Engine) SetScheduler(s Scheduler) {
	e.scheduler = s
}

// Decompose resolves `{ref}` values against inputJSON, builds the
// resource dependency graph, topologically sorts it (Kahn's algorithm,
// a cycle is a fatal topology error), and maps each resource to a Step
// in dependency order.
func (e *Engine) Decompose(name, inputJSON string) ([]Step, error) {
	contract, ok := e.contracts.Topology(name)
	if !ok {
		return nil, engerr.NotFound("topology", name)
	}

	resolved := make([]map[string]interface{}, len(contract.Resources))
	for i, r := range contract.Resources {
		resolved[i] = refs.ResolveRawParams(r.Properties, inputJSON)
	}

	order, err := topoSort(contract.Resources, resolved, name)
	if err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(order))
	for _, idx := range order {
		resource := contract.Resources[idx]
		mapper, ok := e.mappers[resource.ResourceType]
		if !ok {
			return nil, engerr.New(engerr.CodeValidation, fmt.Sprintf("no mapper registered for resource type %q", resource.ResourceType), 400)
		}
		step, err := mapper(resource, resolved[idx])
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// topoSort builds a dependency graph where resource A depends on
// resource B iff one of A's resolved property values equals B's name,
// then returns resource indices in a valid topological order.
func topoSort(resources []contracts.ResourceDecl, resolved []map[string]interface{}, topologyName string) ([]int, error) {
	n := len(resources)
	nameToIdx := make(map[string]int, n)
	for i, r := range resources {
		nameToIdx[r.Name] = i
	}

	deps := make([][]int, n)
	indegree := make([]int, n)
	for i, props := range resolved {
		for _, v := range props {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if depIdx, ok := nameToIdx[s]; ok && depIdx != i {
				deps[i] = append(deps[i], depIdx)
				indegree[i]++
			}
		}
	}

	var order []int
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	dependents := make([][]int, n)
	for i, ds := range deps {
		for _, d := range ds {
			dependents[d] = append(dependents[d], i)
		}
	}

	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		for _, dep := range dependents[cur] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != n {
		return nil, engerr.TopologyCycle(topologyName)
	}
	return order, nil
}

func marshalInput(props map[string]interface{}) (string, error) {
	b, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Execute decomposes name against inputJSON and runs each step in
// order. Under "preserve what works", a step error is captured and
// execution continues, with an aggregate error raised at the end iff
// any step failed; every other on-failure policy re-raises on the
// first error.
func (e *Engine) Execute(ctx context.Context, name, inputJSON string) ([]string, error) {
	contract, ok := e.contracts.Topology(name)
	if !ok {
		return nil, engerr.NotFound("topology", name)
	}

	steps, err := e.Decompose(name, inputJSON)
	if err != nil {
		return nil, err
	}

	outputs := make([]string, 0, len(steps))
	var failures []string

	for _, step := range steps {
		out, err := e.runStep(ctx, step)
		if err != nil {
			if contract.OnFailure != contracts.OnFailurePreserveWorking {
				return nil, engerr.Wrap(engerr.CodeValidation, fmt.Sprintf("topology %q execution failed", name), 422, err)
			}
			failures = append(failures, fmt.Sprintf("%s: %v", step.ResourceName, err))
			continue
		}
		outputs = append(outputs, out...)
	}

	if len(failures) > 0 {
		return outputs, engerr.New(engerr.CodeValidation, fmt.Sprintf("topology %q: %d resource(s) failed: %s", name, len(failures), strings.Join(failures, "; ")), 422)
	}

	if len(contract.Verify) > 0 && e.scheduler != nil {
		_ = e.scheduler.Schedule(ctx, contract.Verify, inputJSON)
	}

	return outputs, nil
}

func (e *Engine) runStep(ctx context.Context, step Step) ([]string, error) {
	switch step.Action {
	case ActionPathway:
		return e.runner.RunPathway(ctx, step.Target, step.InputJSON)
	case ActionGene:
		out, _, err := e.runner.ExecuteLocus(ctx, step.Target, step.InputJSON)
		if err != nil {
			return nil, err
		}
		return []string{out}, nil
	case ActionLoopGene:
		outputs := make([]string, 0, len(step.LoopItems))
		for _, item := range step.LoopItems {
			itemInput, err := marshalInput(map[string]interface{}{"item": item})
			if err != nil {
				return nil, err
			}
			out, _, err := e.runner.ExecuteLocus(ctx, step.Target, itemInput)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, out)
		}
		return outputs, nil
	default:
		return nil, engerr.New(engerr.CodeValidation, fmt.Sprintf("unknown topology step action %q", step.Action), 400)
	}
}
