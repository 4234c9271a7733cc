package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selfgene/sg/internal/contracts"
)

type stubContracts struct {
	topologies map[string]*contracts.TopologyContract
}

func (s *stubContracts) Gene(string) (*contracts.GeneContract, bool)       { return nil, false }
func (s *stubContracts) Pathway(string) (*contracts.PathwayContract, bool) { return nil, false }
func (s *stubContracts) Topology(name string) (*contracts.TopologyContract, bool) {
	c, ok := s.topologies[name]
	return c, ok
}

type stubRunner struct {
	locusCalls   []string
	pathwayCalls []string
	err          error
}

func (r *stubRunner) ExecuteLocus(ctx context.Context, locus, inputJSON string) (string, string, error) {
	r.locusCalls = append(r.locusCalls, locus+":"+inputJSON)
	if r.err != nil {
		return "", "", r.err
	}
	return `{"success":true}`, "allele-1", nil
}

func (r *stubRunner) RunPathway(ctx context.Context, name, inputJSON string) ([]string, error) {
	r.pathwayCalls = append(r.pathwayCalls, name)
	return []string{`{"success":true}`}, nil
}

func geneMapper(resource contracts.ResourceDecl, resolved map[string]interface{}) (Step, error) {
	input, err := marshalInput(resolved)
	if err != nil {
		return Step{}, err
	}
	return Step{ResourceName: resource.Name, Action: ActionGene, Target: resource.ResourceType + "_create", InputJSON: input}, nil
}

func TestDecomposeOrdersByDependency(t *testing.T) {
	contract := &contracts.TopologyContract{
		Name: "management_stack",
		Resources: []contracts.ResourceDecl{
			{Name: "br0", ResourceType: "bridge", Properties: map[string]interface{}{}},
			{Name: "bond0", ResourceType: "bond", Properties: map[string]interface{}{"bridge": "br0"}},
		},
	}
	sc := &stubContracts{topologies: map[string]*contracts.TopologyContract{"management_stack": contract}}
	e := New(sc, map[string]Mapper{"bridge": geneMapper, "bond": geneMapper}, &stubRunner{})

	steps, err := e.Decompose("management_stack", `{}`)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "br0", steps[0].ResourceName)
	require.Equal(t, "bond0", steps[1].ResourceName)
}

func TestDecomposeDetectsCycle(t *testing.T) {
	contract := &contracts.TopologyContract{
		Name: "cyclic",
		Resources: []contracts.ResourceDecl{
			{Name: "a", ResourceType: "bridge", Properties: map[string]interface{}{"peer": "b"}},
			{Name: "b", ResourceType: "bridge", Properties: map[string]interface{}{"peer": "a"}},
		},
	}
	sc := &stubContracts{topologies: map[string]*contracts.TopologyContract{"cyclic": contract}}
	e := New(sc, map[string]Mapper{"bridge": geneMapper}, &stubRunner{})

	_, err := e.Decompose("cyclic", `{}`)
	require.Error(t, err)
}

func TestDecomposeMissingMapperErrors(t *testing.T) {
	contract := &contracts.TopologyContract{
		Name:      "unmapped",
		Resources: []contracts.ResourceDecl{{Name: "x", ResourceType: "vxlan", Properties: map[string]interface{}{}}},
	}
	sc := &stubContracts{topologies: map[string]*contracts.TopologyContract{"unmapped": contract}}
	e := New(sc, map[string]Mapper{}, &stubRunner{})

	_, err := e.Decompose("unmapped", `{}`)
	require.Error(t, err)
}

func TestExecuteRunsEveryStep(t *testing.T) {
	contract := &contracts.TopologyContract{
		Name: "management_stack",
		Resources: []contracts.ResourceDecl{
			{Name: "br0", ResourceType: "bridge", Properties: map[string]interface{}{}},
		},
		OnFailure: contracts.OnFailureRollbackAll,
	}
	sc := &stubContracts{topologies: map[string]*contracts.TopologyContract{"management_stack": contract}}
	runner := &stubRunner{}
	e := New(sc, map[string]Mapper{"bridge": geneMapper}, runner)

	outs, err := e.Execute(context.Background(), "management_stack", `{}`)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	require.Len(t, runner.locusCalls, 1)
}

func TestExecutePreserveWhatWorksAggregatesFailures(t *testing.T) {
	contract := &contracts.TopologyContract{
		Name: "management_stack",
		Resources: []contracts.ResourceDecl{
			{Name: "br0", ResourceType: "bridge", Properties: map[string]interface{}{}},
			{Name: "br1", ResourceType: "bridge", Properties: map[string]interface{}{}},
		},
		OnFailure: contracts.OnFailurePreserveWorking,
	}
	sc := &stubContracts{topologies: map[string]*contracts.TopologyContract{"management_stack": contract}}
	runner := &stubRunner{err: errBoom}
	e := New(sc, map[string]Mapper{"bridge": geneMapper}, runner)

	_, err := e.Execute(context.Background(), "management_stack", `{}`)
	require.Error(t, err)
	require.Len(t, runner.locusCalls, 2)
}

func TestExecuteReraisesOnFirstErrorByDefault(t *testing.T) {
	contract := &contracts.TopologyContract{
		Name: "management_stack",
		Resources: []contracts.ResourceDecl{
			{Name: "br0", ResourceType: "bridge", Properties: map[string]interface{}{}},
			{Name: "br1", ResourceType: "bridge", Properties: map[string]interface{}{}},
		},
		OnFailure: contracts.OnFailureReportPartial,
	}
	sc := &stubContracts{topologies: map[string]*contracts.TopologyContract{"management_stack": contract}}
	runner := &stubRunner{err: errBoom}
	e := New(sc, map[string]Mapper{"bridge": geneMapper}, runner)

	_, err := e.Execute(context.Background(), "management_stack", `{}`)
	require.Error(t, err)
	require.Len(t, runner.locusCalls, 1)
}

type boomErr string

func (e boomErr) Error() string { return string(e) }

var errBoom = boomErr("boom")

type stubScheduler struct {
	calls []string
}

func (s *stubScheduler) Schedule(ctx context.Context, steps []contracts.VerifyStep, originatingInputJSON string) error {
	for _, step := range steps {
		s.calls = append(s.calls, step.Locus)
	}
	return nil
}

func TestExecuteSchedulesContractVerifyOnSuccess(t *testing.T) {
	contract := &contracts.TopologyContract{
		Name: "management_stack",
		Resources: []contracts.ResourceDecl{
			{Name: "br0", ResourceType: "bridge", Properties: map[string]interface{}{}},
		},
		Verify: []contracts.VerifyStep{{Locus: "health_check_bridge", Within: "5s"}},
	}
	sc := &stubContracts{topologies: map[string]*contracts.TopologyContract{"management_stack": contract}}
	runner := &stubRunner{}
	e := New(sc, map[string]Mapper{"bridge": geneMapper}, runner)
	scheduler := &stubScheduler{}
	e.SetScheduler(scheduler)

	_, err := e.Execute(context.Background(), "management_stack", `{}`)
	require.NoError(t, err)
	require.Equal(t, []string{"health_check_bridge"}, scheduler.calls)
}

func TestExecuteDoesNotScheduleVerifyOnFailure(t *testing.T) {
	contract := &contracts.TopologyContract{
		Name: "management_stack",
		Resources: []contracts.ResourceDecl{
			{Name: "br0", ResourceType: "bridge", Properties: map[string]interface{}{}},
		},
		Verify:    []contracts.VerifyStep{{Locus: "health_check_bridge", Within: "5s"}},
		OnFailure: contracts.OnFailureReportPartial,
	}
	sc := &stubContracts{topologies: map[string]*contracts.TopologyContract{"management_stack": contract}}
	runner := &stubRunner{err: errBoom}
	e := New(sc, map[string]Mapper{"bridge": geneMapper}, runner)
	scheduler := &stubScheduler{}
	e.SetScheduler(scheduler)

	_, err := e.Execute(context.Background(), "management_stack", `{}`)
	require.Error(t, err)
	require.Empty(t, scheduler.calls)
}
