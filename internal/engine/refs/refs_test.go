package refs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selfgene/sg/internal/contracts"
)

func TestResolveStepParamsKeepsLiteral(t *testing.T) {
	params := map[string]contracts.Param{"mode": {Literal: "trunk"}}
	got := ResolveStepParams(params, `{}`)
	require.Equal(t, "trunk", got["mode"])
}

func TestResolveStepParamsResolvesRef(t *testing.T) {
	params := map[string]contracts.Param{"name": {Ref: "bridge_name", IsRef: true}}
	got := ResolveStepParams(params, `{"bridge_name":"br0"}`)
	require.Equal(t, "br0", got["name"])
}

func TestResolveStepParamsDropsUndefinedRef(t *testing.T) {
	params := map[string]contracts.Param{"name": {Ref: "missing", IsRef: true}}
	got := ResolveStepParams(params, `{"bridge_name":"br0"}`)
	_, ok := got["name"]
	require.False(t, ok)
}

func TestResolveRawParamsResolvesBraceRef(t *testing.T) {
	params := map[string]interface{}{"name": "{bridge_name}", "count": float64(3)}
	got := ResolveRawParams(params, `{"bridge_name":"br0"}`)
	require.Equal(t, "br0", got["name"])
	require.Equal(t, float64(3), got["count"])
}

func TestResolveRawParamsDropsUndefinedRef(t *testing.T) {
	params := map[string]interface{}{"name": "{missing}"}
	got := ResolveRawParams(params, `{"bridge_name":"br0"}`)
	_, ok := got["name"]
	require.False(t, ok)
}

func TestResolveRawParamsLeavesPlainStringAlone(t *testing.T) {
	params := map[string]interface{}{"mode": "trunk"}
	got := ResolveRawParams(params, `{}`)
	require.Equal(t, "trunk", got["mode"])
}
