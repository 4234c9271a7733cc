// Package orchestrator implements the execution loop: for a locus, walk
// the phenotype's dominance stack, run each candidate allele through the
// safety layer and sandbox, score the outcome, recover through
// demotion/promotion bookkeeping, and fall back to the mutation engine
// once the whole stack is exhausted. It also hosts pathway/topology
// delegation and owns the single mutex serializing kernel access against
// the Verify Scheduler's timer callbacks (spec §5).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/selfgene/sg/internal/contracts"
	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/arena"
	"github.com/selfgene/sg/internal/engine/fusion"
	"github.com/selfgene/sg/internal/engine/mutation"
	"github.com/selfgene/sg/internal/engine/pathway"
	"github.com/selfgene/sg/internal/engine/phenotype"
	"github.com/selfgene/sg/internal/engine/registry"
	"github.com/selfgene/sg/internal/engine/regression"
	"github.com/selfgene/sg/internal/engine/safety"
	"github.com/selfgene/sg/internal/engine/sandbox"
	"github.com/selfgene/sg/internal/engine/topology"
	"github.com/selfgene/sg/internal/engine/verify"
	"github.com/selfgene/sg/internal/kernelapi"
	"github.com/selfgene/sg/internal/obslog"
)

// maxMutationAttempts bounds the mutation-retry loop once a locus's
// entire stack has failed.
const maxMutationAttempts = 3

// AuditSink mirrors every execute_locus attempt to a durable side
// channel. A nil AuditSink in Config disables mirroring entirely; the
// registry/phenotype files remain the engine's source of truth either
// way.
type AuditSink interface {
	Record(ctx context.Context, locus, alleleID, outcome string, durationMS int64, errMsg string)
}

// Config wires an Orchestrator's collaborators. The zero value is not
// usable; every field except Logger, MutationEngine, FusionEngine,
// RegressionDetector, ResourceMappers, AuditSink, and GeneTimeout is
// required.
type Config struct {
	Registry           *registry.Registry
	Phenotype          *phenotype.Phenotype
	Contracts          contracts.ContractProvider
	Kernel             kernelapi.Kernel
	MutationEngine     mutation.Engine
	FusionEngine       *fusion.Engine
	RegressionDetector *regression.Detector
	ResourceMappers    map[string]topology.Mapper
	Logger             *obslog.Logger
	AuditSink          AuditSink
	GeneTimeout        time.Duration
}

// Orchestrator is the engine's authoritative in-memory driver. It is
// safe for concurrent use: every entry point serializes on an internal
// mutex, since the Verify Scheduler's timers call back into
// ExecuteLocus from their own goroutines.
type Orchestrator struct {
	registry           *registry.Registry
	phenotype          *phenotype.Phenotype
	contracts          contracts.ContractProvider
	kernel             kernelapi.Kernel
	mutationEngine     mutation.Engine
	regressionDetector *regression.Detector
	logger             *obslog.Logger
	geneTimeout        time.Duration

	pathwayEngine  *pathway.Engine
	topologyEngine *topology.Engine
	scheduler      *verify.Scheduler
	auditSink      AuditSink

	mu sync.Mutex
}

// New constructs an Orchestrator and wires the pathway, topology, and
// verify components around it.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		registry:           cfg.Registry,
		phenotype:          cfg.Phenotype,
		contracts:          cfg.Contracts,
		kernel:             cfg.Kernel,
		mutationEngine:     cfg.MutationEngine,
		regressionDetector: cfg.RegressionDetector,
		logger:             cfg.Logger,
		auditSink:          cfg.AuditSink,
		geneTimeout:        cfg.GeneTimeout,
	}
	if o.geneTimeout <= 0 {
		o.geneTimeout = sandbox.DefaultTimeout
	}

	fusionEngine := cfg.FusionEngine
	if fusionEngine == nil {
		fusionEngine = fusion.New()
	}

	adapter := &runnerAdapter{o: o}
	o.pathwayEngine = pathway.New(cfg.Contracts, cfg.Registry, cfg.Phenotype, fusionEngine, cfg.MutationEngine, adapter)
	o.topologyEngine = topology.New(cfg.Contracts, cfg.ResourceMappers, adapter)
	o.scheduler = verify.New(adapter, cfg.Logger)
	o.topologyEngine.SetScheduler(o.scheduler)
	return o
}

// Scheduler exposes the Verify Scheduler, for CLI single-shot
// invocations to Wait() on before exiting.
func (o *Orchestrator) Scheduler() *verify.Scheduler {
	return o.scheduler
}

// runnerAdapter exposes the Orchestrator's internal, lock-free execution
// primitives to the pathway/topology/verify components under the
// exported method names their Runner/Executor interfaces require,
// without those components re-entering the exported (locking) entry
// points and deadlocking against the mutex their own call already holds.
type runnerAdapter struct {
	o *Orchestrator
}

func (r *runnerAdapter) ExecuteLocus(ctx context.Context, locus, inputJSON string) (string, string, error) {
	return r.o.executeLocusLocked(ctx, locus, inputJSON)
}

func (r *runnerAdapter) ExecuteAllele(ctx context.Context, locus string, id registry.AlleleID, inputJSON string) (string, error) {
	return r.o.executeAlleleLocked(ctx, locus, id, inputJSON)
}

func (r *runnerAdapter) RunPathway(ctx context.Context, name, inputJSON string) ([]string, error) {
	return r.o.runPathwayLocked(ctx, name, inputJSON)
}

// ExecuteLocus is execute_locus: select down the phenotype's dominance
// stack, run each candidate, score the outcome, and fall back to the
// mutation engine once the stack is exhausted.
func (o *Orchestrator) ExecuteLocus(ctx context.Context, locus, inputJSON string) (string, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.executeLocusLocked(ctx, locus, inputJSON)
}

// RunPathway is run_pathway: snapshot tracked resources, delegate to the
// Pathway Engine, and apply the on-failure rollback policy if it raises.
func (o *Orchestrator) RunPathway(ctx context.Context, name, inputJSON string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runPathwayLocked(ctx, name, inputJSON)
}

// RunTopology is run_topology: delegate to the Topology Engine.
func (o *Orchestrator) RunTopology(ctx context.Context, name, inputJSON string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.topologyEngine.Execute(ctx, name, inputJSON)
}

func (o *Orchestrator) executeLocusLocked(ctx context.Context, locus, inputJSON string) (out, alleleID string, err error) {
	if o.auditSink != nil {
		start := time.Now()
		defer func() {
			outcome, errMsg := "success", ""
			if err != nil {
				outcome, errMsg = "failure", err.Error()
			}
			o.auditSink.Record(ctx, locus, alleleID, outcome, time.Since(start).Milliseconds(), errMsg)
		}()
	}
	return o.executeLocusLockedInner(ctx, locus, inputJSON)
}

func (o *Orchestrator) executeLocusLockedInner(ctx context.Context, locus, inputJSON string) (string, string, error) {
	contract, _ := o.contracts.Gene(locus)
	risk := contracts.RiskLow
	if contract != nil && contract.Risk != "" {
		risk = contract.Risk
	}
	policy := safety.PolicyFor(string(risk))

	var lastErr error
	var lastSource string
	var lastAllele *registry.Allele

	for _, id := range o.phenotype.GetStack(locus) {
		allele, ok := o.registry.Get(id)
		if !ok {
			continue
		}
		if allele.State == registry.StateDeprecated {
			continue
		}
		source, ok := o.registry.LoadSource(id)
		if !ok {
			continue
		}
		lastSource, lastAllele = source, allele

		if safety.NeedsShadow(policy, allele) {
			out, err := o.runShadow(ctx, allele, source, inputJSON)
			if err == nil {
				return out, string(id), nil
			}
			lastErr = err
			continue
		}

		out, err := o.runAllele(ctx, locus, allele, source, policy, string(risk), inputJSON)
		if err == nil {
			o.onSuccess(ctx, locus, contract, allele, out, inputJSON)
			return out, string(id), nil
		}
		lastErr = err
		o.onFailure(allele)
	}

	return o.mutateAndRetry(ctx, locus, contract, risk, policy, inputJSON, lastSource, lastAllele, lastErr)
}

func (o *Orchestrator) executeAlleleLocked(ctx context.Context, locus string, id registry.AlleleID, inputJSON string) (string, error) {
	allele, ok := o.registry.Get(id)
	if !ok {
		return "", engerr.NotFound("allele", string(id))
	}
	source, ok := o.registry.LoadSource(id)
	if !ok {
		return "", engerr.NotFound("allele source", string(id))
	}

	contract, _ := o.contracts.Gene(locus)
	risk := contracts.RiskLow
	if contract != nil && contract.Risk != "" {
		risk = contract.Risk
	}
	policy := safety.PolicyFor(string(risk))

	out, err := o.runAllele(ctx, locus, allele, source, policy, string(risk), inputJSON)
	if err != nil {
		allele.RecordFailure()
		return "", err
	}
	allele.RecordSuccess()
	return out, nil
}

// runShadow executes allele against a freshly created shadow kernel: the
// real kernel is never touched. A success returns the shadow's output to
// the caller and increments the allele's shadow counter toward the
// go-live threshold; a failure resets the counter to 0.
func (o *Orchestrator) runShadow(ctx context.Context, allele *registry.Allele, source, inputJSON string) (string, error) {
	shadowKernel, err := o.kernel.CreateShadow(ctx)
	if err != nil {
		safety.RecordShadowOutcome(allele, false)
		return "", err
	}

	gene, err := sandbox.Load(source, shadowKernel, string(allele.ID))
	if err != nil {
		safety.RecordShadowOutcome(allele, false)
		return "", err
	}

	out, err := gene.Call(ctx, string(allele.ID), inputJSON, o.geneTimeout)
	if err != nil {
		safety.RecordShadowOutcome(allele, false)
		return "", err
	}
	if err := validateOutput(out); err != nil {
		safety.RecordShadowOutcome(allele, false)
		return "", err
	}

	safety.RecordShadowOutcome(allele, true)
	return out, nil
}

// runAllele wraps the kernel in a SafeKernel (opening a transaction if
// the risk policy calls for one), loads the gene, calls it, validates
// the output, and commits or rolls back. Success/failure bookkeeping on
// the allele itself is the caller's responsibility.
func (o *Orchestrator) runAllele(ctx context.Context, locus string, allele *registry.Allele, source string, policy safety.RiskPolicy, risk, inputJSON string) (string, error) {
	var txn *safety.Transaction
	if policy.UseTransaction {
		txn = safety.NewTransaction(locus, risk)
	}
	safeKernel := safety.NewSafeKernel(o.kernel, txn)

	gene, err := sandbox.Load(source, safeKernel, string(allele.ID))
	if err != nil {
		if txn != nil {
			txn.Rollback(ctx)
		}
		return "", err
	}

	out, err := gene.Call(ctx, string(allele.ID), inputJSON, o.geneTimeout)
	if err != nil {
		if txn != nil {
			txn.Rollback(ctx)
		}
		return "", err
	}

	if err := validateOutput(out); err != nil {
		if txn != nil {
			txn.Rollback(ctx)
		}
		return "", err
	}

	if txn != nil {
		if err := txn.Commit(); err != nil {
			return "", err
		}
	}
	return out, nil
}

func (o *Orchestrator) onSuccess(ctx context.Context, locus string, contract *contracts.GeneContract, allele *registry.Allele, output, inputJSON string) {
	allele.RecordSuccess()

	if contract != nil {
		o.processFeeds(contract, output)
		if len(contract.Verify) > 0 && o.scheduler != nil {
			_ = o.scheduler.Schedule(ctx, contract.Verify, inputJSON)
		}
	}

	fitness := arena.DistributedFitness(allele)
	if o.regressionDetector != nil {
		o.regressionDetector.Record(allele, fitness)
	}

	dominant := o.currentDominant(locus)
	if arena.ShouldPromote(allele, dominant) && (dominant == nil || dominant.ID != allele.ID) {
		oldID := registry.AlleleID("")
		if dominant != nil {
			oldID = dominant.ID
		}
		o.phenotype.Promote(locus, allele.ID)
		if o.logger != nil {
			o.logger.LogPromotion(ctx, locus, string(allele.ID), string(oldID))
		}
	}

	if o.logger != nil {
		o.logger.LogExecution(ctx, locus, string(allele.ID), true, 0, nil)
	}
}

func (o *Orchestrator) onFailure(allele *registry.Allele) {
	allele.RecordFailure()
	if arena.ShouldDemote(allele) {
		allele.State = registry.StateDeprecated
	}
}

func (o *Orchestrator) currentDominant(locus string) *registry.Allele {
	stack := o.phenotype.GetStack(locus)
	if len(stack) == 0 {
		return nil
	}
	a, _ := o.registry.Get(stack[0])
	return a
}

type diagnosticOutcome struct {
	Healthy *bool `json:"healthy"`
}

// processFeeds appends a fitness record to each fed target locus's
// dominant allele when a diagnostic reports {healthy: bool}.
func (o *Orchestrator) processFeeds(contract *contracts.GeneContract, output string) {
	if len(contract.Feeds) == 0 {
		return
	}
	var outcome diagnosticOutcome
	if err := json.Unmarshal([]byte(output), &outcome); err != nil || outcome.Healthy == nil {
		return
	}
	for _, feed := range contract.Feeds {
		dominant := o.currentDominant(feed.TargetLocus)
		if dominant == nil {
			continue
		}
		dominant.AppendFitnessRecord(registry.FitnessRecord{
			Timescale:   registry.Timescale(feed.Timescale),
			Success:     *outcome.Healthy,
			SourceLocus: contract.Name,
			Timestamp:   float64(time.Now().Unix()),
		})
	}
}

func (o *Orchestrator) mutateAndRetry(
	ctx context.Context,
	locus string,
	contract *contracts.GeneContract,
	risk contracts.Risk,
	policy safety.RiskPolicy,
	inputJSON, lastSource string,
	lastAllele *registry.Allele,
	lastErr error,
) (string, string, error) {
	if o.mutationEngine == nil {
		return "", "", engerr.New(engerr.CodeValidation, fmt.Sprintf("locus %q: alleles exhausted and no mutation engine configured", locus), 422)
	}

	parent := registry.AlleleID("")
	generation := 0
	if lastAllele != nil {
		parent = lastAllele.ID
		generation = lastAllele.Generation + 1
	}
	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}

	for attempt := 1; attempt <= maxMutationAttempts; attempt++ {
		newSource, err := o.mutationEngine.Mutate(ctx, mutation.Context{
			GeneSource:   lastSource,
			Locus:        locus,
			FailingInput: inputJSON,
			ErrorMessage: errMsg,
		})
		if err != nil {
			lastErr = engerr.MutationGen(locus, attempt, err)
			if o.logger != nil {
				o.logger.LogMutation(ctx, locus, attempt, err)
			}
			continue
		}

		newID, err := o.registry.Register(newSource, locus, generation, parent)
		if err != nil {
			lastErr = err
			continue
		}
		o.phenotype.AddToFallback(locus, newID)

		newAllele, _ := o.registry.Get(newID)
		out, err := o.runAllele(ctx, locus, newAllele, newSource, policy, string(risk), inputJSON)
		if err == nil {
			o.onSuccess(ctx, locus, contract, newAllele, out, inputJSON)
			if o.logger != nil {
				o.logger.LogMutation(ctx, locus, attempt, nil)
			}
			return out, string(newID), nil
		}

		o.onFailure(newAllele)
		lastErr, lastSource = err, newSource
		parent, generation = newID, newAllele.Generation+1
	}

	return "", "", engerr.Wrap(engerr.CodeMutationGen, fmt.Sprintf("locus %q exhausted all alleles and mutation attempts", locus), 422, lastErr)
}

func (o *Orchestrator) runPathwayLocked(ctx context.Context, name, inputJSON string) ([]string, error) {
	before, err := o.kernel.TrackedResources(ctx)
	if err != nil {
		return nil, err
	}
	beforeSet := toResourceSet(before)

	contract, hasContract := o.contracts.Pathway(name)

	outputs, err := o.pathwayEngine.Run(ctx, name, inputJSON)
	if err != nil {
		onFailure := contracts.OnFailureReportPartial
		if hasContract {
			onFailure = contract.OnFailure
		}
		if onFailure == contracts.OnFailureRollbackAll {
			o.rollbackNewResources(ctx, beforeSet)
		}
		return nil, err
	}

	if hasContract && len(contract.Verify) > 0 && o.scheduler != nil {
		_ = o.scheduler.Schedule(ctx, contract.Verify, inputJSON)
	}

	return outputs, nil
}

func (o *Orchestrator) rollbackNewResources(ctx context.Context, before map[kernelapi.TrackedResource]bool) {
	after, err := o.kernel.TrackedResources(ctx)
	if err != nil {
		return
	}
	for _, r := range after {
		if !before[r] {
			_ = o.kernel.DeleteResource(ctx, r.Type, r.Name)
		}
	}
}

func toResourceSet(resources []kernelapi.TrackedResource) map[kernelapi.TrackedResource]bool {
	set := make(map[kernelapi.TrackedResource]bool, len(resources))
	for _, r := range resources {
		set[r] = true
	}
	return set
}

// validateOutput requires output to be a JSON object containing a
// boolean "success" field, itself true; a gene reporting success=false
// is treated identically to an exception or timeout.
func validateOutput(output string) error {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return engerr.New(engerr.CodeValidation, "gene output is not a JSON object", 422)
	}
	raw, ok := parsed["success"]
	if !ok {
		return engerr.New(engerr.CodeValidation, `gene output missing boolean field "success"`, 422)
	}
	success, ok := raw.(bool)
	if !ok {
		return engerr.New(engerr.CodeValidation, `gene output field "success" is not boolean`, 422)
	}
	if !success {
		return engerr.New(engerr.CodeValidation, "gene reported success=false", 422)
	}
	return nil
}
