package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/selfgene/sg/internal/engerr"
)

// Call invokes the gene's execute function with inputJSON, under a
// wall-clock timeout (DefaultTimeout if timeout<=0). A goroutine watches
// ctx.Done and interrupts the runtime, matching the devpack executor's
// timeout mechanism: goja has no preemptive signal mechanism, so
// cooperative interruption via Runtime.Interrupt is the only portable
// option across platforms.
func (g *Gene) Call(ctx context.Context, alleleID, inputJSON string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			g.runtime.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	var input interface{}
	if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
		return "", engerr.Validation(alleleID, fmt.Sprintf("input is not valid JSON: %v", err))
	}

	started := time.Now()
	result, err := g.fn(goja.Undefined(), g.runtime.ToValue(input))
	if err != nil {
		return "", translateRuntimeError(alleleID, err, ctx, time.Since(started))
	}

	exported := result.Export()
	output, ok := exported.(string)
	if !ok {
		return "", engerr.Validation(alleleID, "gene execute() must return a JSON string")
	}

	var probe interface{}
	if err := json.Unmarshal([]byte(output), &probe); err != nil {
		return "", engerr.Validation(alleleID, fmt.Sprintf("gene output is not valid JSON: %v", err))
	}

	return output, nil
}

func translateRuntimeError(alleleID string, err error, ctx context.Context, elapsed time.Duration) error {
	if ctx.Err() != nil {
		return engerr.GeneTimeout(alleleID, elapsed.Milliseconds())
	}

	switch typed := err.(type) {
	case *goja.InterruptedError:
		return engerr.GeneTimeout(alleleID, elapsed.Milliseconds())
	case *goja.Exception:
		return engerr.GeneRuntime(alleleID, typed)
	default:
		return engerr.GeneRuntime(alleleID, err)
	}
}
