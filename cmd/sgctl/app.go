package main

import (
	"fmt"

	"github.com/selfgene/sg/internal/contracts"
	"github.com/selfgene/sg/internal/engconfig"
	"github.com/selfgene/sg/internal/engine/arena"
	"github.com/selfgene/sg/internal/engine/federation"
	"github.com/selfgene/sg/internal/engine/mutation"
	"github.com/selfgene/sg/internal/engine/orchestrator"
	"github.com/selfgene/sg/internal/engine/phenotype"
	"github.com/selfgene/sg/internal/engine/pool"
	"github.com/selfgene/sg/internal/engine/regression"
	"github.com/selfgene/sg/internal/engine/registry"
	"github.com/selfgene/sg/internal/kernelapi"
	"github.com/selfgene/sg/internal/mockkernel"
	"github.com/selfgene/sg/internal/obslog"
)

// app wires every collaborator a subcommand needs, built once per
// invocation from the project rooted at the resolved working directory.
// Mirrors the teacher CLI's apiClient, but drives in-process engine state
// rather than a remote HTTP API.
type app struct {
	cfg       *engconfig.Config
	logger    *obslog.Logger
	registry  *registry.Registry
	phenotype *phenotype.Phenotype
	regr      *regression.Detector
	contracts contracts.ContractProvider
	kernel    kernelapi.Kernel
	mutation  mutation.Engine
	orch      *orchestrator.Orchestrator
	exchange  *federation.Exchange
}

// newApp loads configuration and every piece of persisted state under
// the project root, then wires the orchestrator around them. It does not
// require `sgctl init` to have been run first: EnsureProjectLayout is
// idempotent.
func newApp() (*app, error) {
	cfg, err := engconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureProjectLayout(); err != nil {
		return nil, fmt.Errorf("ensure project layout: %w", err)
	}

	logger := obslog.NewFromEnv("sgctl")

	reg := registry.New(cfg.Engine.ProjectRoot)
	if err := reg.LoadIndex(); err != nil {
		return nil, fmt.Errorf("load registry index: %w", err)
	}

	pheno := phenotype.New(cfg.Engine.ProjectRoot)
	if err := pheno.Load(); err != nil {
		return nil, fmt.Errorf("load phenotype: %w", err)
	}
	if err := seedGenes(cfg.Engine.GenesDir, reg, pheno); err != nil {
		return nil, fmt.Errorf("seed genes: %w", err)
	}

	regr := regression.New(cfg.Engine.ProjectRoot)

	cp := contracts.NewJSONContractProvider()
	if err := cp.LoadDir(cfg.Engine.ContractsDir); err != nil {
		return nil, fmt.Errorf("load contracts: %w", err)
	}

	kernel := mockkernel.New()

	mutationEngine, err := newMutationEngine(cfg, cp)
	if err != nil {
		return nil, err
	}

	sink, err := newAuditSink(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init audit sink: %w", err)
	}
	var audit orchestrator.AuditSink
	if sink != nil {
		audit = sink
	}

	orch := orchestrator.New(orchestrator.Config{
		Registry:           reg,
		Phenotype:          pheno,
		Contracts:          cp,
		Kernel:             kernel,
		MutationEngine:     mutationEngine,
		RegressionDetector: regr,
		ResourceMappers:    networkResourceMappers(),
		Logger:             logger,
		AuditSink:          audit,
		GeneTimeout:        cfg.Engine.GeneTimeout,
	})

	exchange := federation.New(reg, pheno, arena.DistributedFitness)

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		phenotype: pheno,
		regr:      regr,
		contracts: cp,
		kernel:    kernel,
		mutation:  mutationEngine,
		orch:      orch,
		exchange:  exchange,
	}, nil
}

// newMutationEngine selects the mutation backend named by
// SG_MUTATION_ENGINE. "fixture" is the default and requires no
// credentials; "claude", "openai", and "deepseek" read their API keys
// from the environment the same way the teacher's services read theirs.
func newMutationEngine(cfg *engconfig.Config, cp contracts.ContractProvider) (mutation.Engine, error) {
	switch cfg.Engine.MutationEngine {
	case "", "fixture":
		return mutation.NewFixtureEngine(cfg.Engine.FixturesDir), nil
	case "claude":
		return mutation.NewClaudeEngine(envSecret("SG_ANTHROPIC_API_KEY"), envOr("SG_MUTATION_MODEL", "claude-sonnet-4-5"), cp), nil
	case "openai":
		return mutation.NewOpenAIEngine(envSecret("SG_OPENAI_API_KEY"), envOr("SG_MUTATION_MODEL", "gpt-4o"), envOr("SG_MUTATION_BASE_URL", ""), cp), nil
	case "deepseek":
		return mutation.NewDeepSeekEngine(envSecret("SG_DEEPSEEK_API_KEY"), envOr("SG_MUTATION_MODEL", "deepseek-chat"), envOr("SG_MUTATION_BASE_URL", ""), cp), nil
	default:
		return nil, fmt.Errorf("unknown mutation engine %q", cfg.Engine.MutationEngine)
	}
}

// poolClient builds a federation pool client from the engine's
// configuration. Returns an error if no JWT secret is configured, since
// every pool call must be signed.
func (a *app) poolClient() (*pool.Client, error) {
	if a.cfg.Pool.JWTSecret == "" {
		return nil, fmt.Errorf("SG_POOL_JWT_SECRET is not set")
	}
	return pool.NewClient(pool.ClientConfig{
		SelfName:       hostNameOr("sgctl"),
		SelfDomain:     a.kernel.DomainName(),
		JWTSecret:      a.cfg.Pool.JWTSecret,
		RateLimitRPS:   a.cfg.Pool.RateLimitRPS,
		RequestBurst:   a.cfg.Pool.RequestBurst,
		RequestTimeout: a.cfg.Pool.RequestTimeout,
	}), nil
}

func (a *app) peers() ([]pool.Peer, error) {
	return pool.LoadPeers(a.cfg.PeersPath())
}

func (a *app) membershipStore() *pool.MembershipStore {
	return pool.NewMembershipStore(a.cfg.PoolMembershipsPath())
}
