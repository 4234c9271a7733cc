package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selfgene/sg/internal/engine/registry"
	"github.com/selfgene/sg/internal/mockkernel"
)

func TestPolicyForEachRiskTier(t *testing.T) {
	require.Equal(t, RiskPolicy{false, false}, PolicyFor("none"))
	require.Equal(t, RiskPolicy{true, false}, PolicyFor("low"))
	require.Equal(t, RiskPolicy{true, false}, PolicyFor("medium"))
	require.Equal(t, RiskPolicy{true, true}, PolicyFor("high"))
	require.Equal(t, RiskPolicy{true, true}, PolicyFor("critical"))
	require.Equal(t, PolicyFor("low"), PolicyFor("unknown"))
}

func TestTransactionCommitDiscardsUndoLog(t *testing.T) {
	txn := NewTransaction("bridge_create", "low")
	invoked := false
	txn.Append("create br0", func(ctx context.Context) error {
		invoked = true
		return nil
	})

	require.NoError(t, txn.Commit())
	require.False(t, txn.IsOpen())
	require.False(t, invoked)
}

func TestTransactionRollbackRunsThunksInLIFOOrder(t *testing.T) {
	txn := NewTransaction("bridge_create", "low")
	var order []string
	txn.Append("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	txn.Append("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	succeeded := txn.Rollback(context.Background())
	require.Equal(t, []string{"second", "first"}, order)
	require.Equal(t, []string{"second", "first"}, succeeded)
	require.False(t, txn.IsOpen())
}

func TestTransactionRollbackTroleratesThunkErrors(t *testing.T) {
	txn := NewTransaction("bridge_create", "low")
	txn.Append("ok", func(ctx context.Context) error { return nil })
	txn.Append("fails", func(ctx context.Context) error { return require.AnError })

	succeeded := txn.Rollback(context.Background())
	require.Equal(t, []string{"ok"}, succeeded)
}

func TestTransactionCommitAfterRollbackFails(t *testing.T) {
	txn := NewTransaction("bridge_create", "low")
	txn.Rollback(context.Background())
	require.Error(t, txn.Commit())
}

func TestSafeKernelAppendsUndoOnlyOnSuccess(t *testing.T) {
	k := mockkernel.New()
	ctx := context.Background()
	txn := NewTransaction("bridge_create", "low")
	safe := NewSafeKernel(k, txn)

	_, err := safe.Call(ctx, "create_bridge", map[string]interface{}{"name": "br0", "interfaces": []interface{}{}})
	require.NoError(t, err)

	_, err = safe.Call(ctx, "create_bridge", map[string]interface{}{"name": "br0", "interfaces": []interface{}{}})
	require.Error(t, err)

	succeeded := txn.Rollback(ctx)
	require.Equal(t, []string{"create_bridge"}, succeeded)

	got, err := k.GetBridge(ctx, "br0")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSafeKernelPassesReadOnlyCallsThrough(t *testing.T) {
	k := mockkernel.New()
	ctx := context.Background()
	safe := NewSafeKernel(k, nil)

	_, err := safe.Call(ctx, "create_bridge", map[string]interface{}{"name": "br0", "interfaces": []interface{}{}})
	require.NoError(t, err)

	out, err := safe.Call(ctx, "get_bridge", map[string]interface{}{"name": "br0"})
	require.NoError(t, err)
	require.Equal(t, "br0", out.(map[string]interface{})["name"])
}

func TestNeedsShadowRespectsPolicyAndThreshold(t *testing.T) {
	a := &registry.Allele{ShadowSuccesses: 0}
	require.True(t, NeedsShadow(PolicyFor("high"), a))
	require.False(t, NeedsShadow(PolicyFor("low"), a))

	a.ShadowSuccesses = ShadowThreshold
	require.False(t, NeedsShadow(PolicyFor("high"), a))
}

func TestRecordShadowOutcomeResetsOnFailure(t *testing.T) {
	a := &registry.Allele{}
	RecordShadowOutcome(a, true)
	RecordShadowOutcome(a, true)
	require.Equal(t, 2, a.ShadowSuccesses)

	RecordShadowOutcome(a, false)
	require.Equal(t, 0, a.ShadowSuccesses)
}
