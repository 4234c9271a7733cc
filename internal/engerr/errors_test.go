package engerr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := KernelOp("track_resource", cause)

	require.Equal(t, cause, errors.Unwrap(err))
	require.Contains(t, err.Error(), "boom")
	require.Contains(t, err.Error(), string(CodeKernelOp))
}

func TestWithDetailsAccumulates(t *testing.T) {
	err := Validation("abc123", "missing success field")
	require.Equal(t, "abc123", err.Details["allele_id"])
	require.Equal(t, "missing success field", err.Details["reason"])
}

func TestAsExtractsFromChain(t *testing.T) {
	base := GeneTimeout("abc123", 30000)
	wrapped := errors.New("wrapper: " + base.Error())
	require.Nil(t, As(wrapped))

	joined := errors.Join(errors.New("context"), base)
	extracted := As(joined)
	require.NotNil(t, extracted)
	require.Equal(t, CodeGeneTimeout, extracted.Code)
}

func TestHTTPStatusDefaultsTo500(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
	require.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("allele", "abc")))
}

func TestLocusMismatchDetails(t *testing.T) {
	err := LocusMismatch("abc123", "bridge_create", "vlan_create")
	require.Equal(t, "bridge_create", err.Details["existing_locus"])
	require.Equal(t, "vlan_create", err.Details["requested_locus"])
}
