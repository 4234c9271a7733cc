package obslog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithContextCarriesIdentifiers(t *testing.T) {
	logger := New("orchestrator", "info", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithLocus(ctx, "bridge_create")
	ctx = WithAllele(ctx, "deadbeef")
	ctx = WithTxn(ctx, "txn-1")

	logger.WithContext(ctx).Info("selected allele")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "trace-1", decoded["trace_id"])
	require.Equal(t, "bridge_create", decoded["locus"])
	require.Equal(t, "deadbeef", decoded["allele_id"])
	require.Equal(t, "txn-1", decoded["txn_id"])
	require.Equal(t, "orchestrator", decoded["service"])
}

func TestLogExecutionSuccessAndFailure(t *testing.T) {
	logger := New("orchestrator", "info", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.LogExecution(context.Background(), "bridge_create", "abc123", true, 12*time.Millisecond, nil)
	var ok map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ok))
	require.Equal(t, "locus execution", ok["message"])
	require.Equal(t, true, ok["success"])

	buf.Reset()
	logger.LogExecution(context.Background(), "bridge_create", "abc123", false, 5*time.Millisecond, errors.New("boom"))
	var failed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &failed))
	require.Equal(t, "locus execution failed", failed["message"])
	require.Equal(t, "boom", failed["error"])
}

func TestNewTraceIDUnique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	require.NotEqual(t, a, b)
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "1.50ms", FormatDuration(1500*time.Microsecond))
}

func TestDefaultLoggerFallsBack(t *testing.T) {
	require.NotNil(t, Default())
}
