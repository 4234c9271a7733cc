// Package sandbox is the Gene Loader & Sandbox: genes are JavaScript
// source text executed in a goja runtime with a restricted global
// surface, a fixed SDK handle for kernel access, and a wall-clock
// execution timeout.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/selfgene/sg/internal/engerr"
)

// DefaultTimeout is call_gene's wall-clock budget when the caller
// specifies none.
const DefaultTimeout = 30 * time.Second

// sdkHandle is the fixed identifier under which the kernel (or, in the
// current process, a kernel-calling bridge) is injected into gene code.
const sdkHandle = "kernel"

// KernelBridge is the minimal surface genes see of the kernel: a single
// dynamic-dispatch call, matching kernelapi.Kernel.Call. Genes never get
// direct access to Go types.
type KernelBridge interface {
	Call(ctx context.Context, operation string, args map[string]interface{}) (interface{}, error)
}

// Gene is a loaded, callable allele implementation.
type Gene struct {
	runtime *goja.Runtime
	fn      goja.Callable
	logs    *[]string
}

// Logs returns all console.log output accumulated since Load, across
// every Call on this Gene.
func (g *Gene) Logs() []string {
	return *g.logs
}

// Load executes source in a fresh restricted runtime and extracts the
// "execute" entry point. Missing or non-callable entry point is a load
// error. The kernel bridge is injected under the fixed SDK handle before
// the gene source runs, so the gene can call kernel.call(op, args) from
// its very first statement.
func Load(source string, kernel KernelBridge, alleleID string) (*Gene, error) {
	rt := goja.New()

	if err := restrictGlobals(rt); err != nil {
		return nil, engerr.GeneLoad(alleleID, err)
	}

	if err := injectKernel(rt, kernel); err != nil {
		return nil, engerr.GeneLoad(alleleID, err)
	}

	logs := make([]string, 0)
	if err := attachConsole(rt, &logs); err != nil {
		return nil, engerr.GeneLoad(alleleID, err)
	}

	if _, err := rt.RunString(builtins); err != nil {
		return nil, engerr.GeneLoad(alleleID, fmt.Errorf("load builtins: %w", err))
	}

	if _, err := rt.RunString(source); err != nil {
		return nil, engerr.GeneLoad(alleleID, fmt.Errorf("compile gene: %w", err))
	}

	fn, ok := goja.AssertFunction(rt.Get("execute"))
	if !ok {
		return nil, engerr.GeneLoad(alleleID, fmt.Errorf("missing or non-callable entry point %q", "execute"))
	}

	return &Gene{runtime: rt, fn: fn, logs: &logs}, nil
}

func attachConsole(rt *goja.Runtime, logs *[]string) error {
	console := rt.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			*logs = append(*logs, arg.String())
		}
		return goja.Undefined()
	}
	if err := console.Set("log", logFn); err != nil {
		return err
	}
	return rt.Set("console", console)
}

// restrictGlobals removes the globals a sandboxed gene must never reach:
// dynamic code evaluation, the Function constructor, and any host
// filesystem/process surface goja might otherwise expose. goja does not
// implement require/process/fs by default, so this only needs to strip
// eval and Function, which goja does provide.
func restrictGlobals(rt *goja.Runtime) error {
	if err := rt.GlobalObject().Delete("eval"); err != nil {
		return err
	}
	if err := rt.GlobalObject().Delete("Function"); err != nil {
		return err
	}
	return nil
}

func injectKernel(rt *goja.Runtime, kernel KernelBridge) error {
	handle := rt.NewObject()
	callFn := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(rt.NewTypeError("kernel.call requires an operation name"))
		}
		operation := call.Arguments[0].String()

		var args map[string]interface{}
		if len(call.Arguments) > 1 {
			if exported, ok := call.Arguments[1].Export().(map[string]interface{}); ok {
				args = exported
			}
		}

		result, err := kernel.Call(context.Background(), operation, args)
		if err != nil {
			panic(rt.ToValue(err.Error()))
		}
		return rt.ToValue(result)
	}
	if err := handle.Set("call", callFn); err != nil {
		return err
	}
	return rt.Set(sdkHandle, handle)
}

// builtins is a hook for computation-only helpers genes may use beyond
// what goja's own globals (JSON, Math, string/array methods) provide.
// Pure JSON/math/string manipulation only; no file, network, or process
// surface exists in a goja runtime to begin with, so there is nothing
// further to strip there.
const builtins = ``
