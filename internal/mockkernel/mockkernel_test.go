package mockkernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAndGetBridge(t *testing.T) {
	k := New()
	ctx := context.Background()

	bridge, err := k.CreateBridge(ctx, "br0", []string{"eth0", "eth1"})
	require.NoError(t, err)
	require.Equal(t, "br0", bridge["name"])

	got, err := k.GetBridge(ctx, "br0")
	require.NoError(t, err)
	require.Equal(t, []string{"eth0", "eth1"}, got["interfaces"])
}

func TestCreateBridgeDuplicateFails(t *testing.T) {
	k := New()
	ctx := context.Background()
	_, err := k.CreateBridge(ctx, "br0", nil)
	require.NoError(t, err)
	_, err = k.CreateBridge(ctx, "br0", nil)
	require.Error(t, err)
}

func TestSetStpValidatesForwardDelay(t *testing.T) {
	k := New()
	ctx := context.Background()
	_, err := k.CreateBridge(ctx, "br0", nil)
	require.NoError(t, err)

	_, err = k.SetStp(ctx, "br0", true, 99)
	require.Error(t, err)

	state, err := k.SetStp(ctx, "br0", true, 15)
	require.NoError(t, err)
	require.Equal(t, true, state["stp_enabled"])
}

func TestInjectFailureConsumedOnce(t *testing.T) {
	k := New()
	ctx := context.Background()
	k.InjectFailure("create_bridge", "simulated outage")

	_, err := k.CreateBridge(ctx, "br0", nil)
	require.Error(t, err)

	_, err = k.CreateBridge(ctx, "br0", nil)
	require.NoError(t, err)
}

func TestUndoDeleteBridgeRestoresState(t *testing.T) {
	k := New()
	ctx := context.Background()
	ops := k.MutatingOps()

	args := map[string]interface{}{"name": "br0"}
	_, err := k.CreateBridge(ctx, "br0", []string{"eth0"})
	require.NoError(t, err)

	snap, err := ops["delete_bridge"].Snapshot(ctx, args)
	require.NoError(t, err)
	require.NoError(t, k.DeleteBridge(ctx, "br0"))

	require.NoError(t, ops["delete_bridge"].Undo(ctx, snap, args))
	got, err := k.GetBridge(ctx, "br0")
	require.NoError(t, err)
	require.Equal(t, []string{"eth0"}, got["interfaces"])
}

func TestTrackedResourcesRoundTrip(t *testing.T) {
	k := New()
	ctx := context.Background()
	require.NoError(t, k.TrackResource(ctx, "bridge", "br0"))
	require.NoError(t, k.TrackResource(ctx, "bridge", "br0"))

	resources, err := k.TrackedResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)

	require.NoError(t, k.UntrackResource(ctx, "bridge", "br0"))
	resources, err = k.TrackedResources(ctx)
	require.NoError(t, err)
	require.Empty(t, resources)
}

func TestCallDispatchesByName(t *testing.T) {
	k := New()
	ctx := context.Background()

	_, err := k.Call(ctx, "create_bridge", map[string]interface{}{"name": "br0", "interfaces": []interface{}{"eth0"}})
	require.NoError(t, err)

	out, err := k.Call(ctx, "get_bridge", map[string]interface{}{"name": "br0"})
	require.NoError(t, err)
	require.Equal(t, "br0", out.(map[string]interface{})["name"])

	_, err = k.Call(ctx, "not_a_real_op", nil)
	require.Error(t, err)
}

func TestCreateShadowIsIndependent(t *testing.T) {
	k := New()
	ctx := context.Background()
	_, err := k.CreateBridge(ctx, "br0", nil)
	require.NoError(t, err)

	shadow, err := k.CreateShadow(ctx)
	require.NoError(t, err)
	got, err := shadow.(*Kernel).GetBridge(ctx, "br0")
	require.NoError(t, err)
	require.Nil(t, got)
}
