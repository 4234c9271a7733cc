// Package verify is the one-shot diagnostic scheduler: after a
// configuration gene, pathway, or topology declares a `verify` block,
// its diagnostic steps run once, after the declared delay, against the
// live kernel, feeding fitness the same way any other diagnostic does.
//
// This scheduler only ever fires each declared step once; a separate,
// optional recurring poller (wired at the CLI layer via robfig/cron) is
// a convenience on top of it, not part of this component.
package verify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/selfgene/sg/internal/contracts"
	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/refs"
	"github.com/selfgene/sg/internal/obslog"
)

// Executor is the narrow slice of the orchestrator a timer callback
// needs: re-entering execute_locus for a diagnostic step.
type Executor interface {
	ExecuteLocus(ctx context.Context, locus, inputJSON string) (string, string, error)
}

// Scheduler owns a set of pending one-shot timers.
type Scheduler struct {
	executor Executor
	logger   *obslog.Logger

	mu      sync.Mutex
	pending int64
	done    chan struct{}
}

// New constructs a Scheduler that re-enters executor when a timer fires.
func New(executor Executor, logger *obslog.Logger) *Scheduler {
	return &Scheduler{executor: executor, logger: logger, done: make(chan struct{}, 1)}
}

// Schedule arms one timer per verify step, each resolving its params
// against originatingInputJSON (same `{ref}` rules as pathway steps) when
// it fires.
func (s *Scheduler) Schedule(ctx context.Context, steps []contracts.VerifyStep, originatingInputJSON string) error {
	for _, step := range steps {
		delay, err := parseDuration(step.Within)
		if err != nil {
			return engerr.New(engerr.CodeValidation, fmt.Sprintf("invalid verify duration %q", step.Within), 400)
		}
		s.arm(step, originatingInputJSON, delay)
	}
	return nil
}

func (s *Scheduler) arm(step contracts.VerifyStep, originatingInputJSON string, delay time.Duration) {
	atomic.AddInt64(&s.pending, 1)
	time.AfterFunc(delay, func() {
		defer s.fireComplete()
		s.fire(step, originatingInputJSON)
	})
}

func (s *Scheduler) fire(step contracts.VerifyStep, originatingInputJSON string) {
	resolved := refs.ResolveRawParams(step.Params, originatingInputJSON)
	inputJSON, err := marshalParams(resolved)
	if err != nil {
		s.logDiagnosticFailure(step.Locus, err)
		return
	}

	ctx := context.Background()
	if _, _, err := s.executor.ExecuteLocus(ctx, step.Locus, inputJSON); err != nil {
		// Diagnostic failure is logged and swallowed: the diagnostic's own
		// fitness may decay from this, but the verify schedule never
		// escalates a failure to the caller that triggered it.
		s.logDiagnosticFailure(step.Locus, err)
	}
}

func (s *Scheduler) logDiagnosticFailure(locus string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(context.Background(), "scheduled verify diagnostic failed", map[string]interface{}{
		"locus": locus,
		"error": err.Error(),
	})
}

func (s *Scheduler) fireComplete() {
	if atomic.AddInt64(&s.pending, -1) == 0 {
		select {
		case s.done <- struct{}{}:
		default:
		}
	}
}

// PendingCount reports outstanding timers.
func (s *Scheduler) PendingCount() int64 {
	return atomic.LoadInt64(&s.pending)
}

// Wait blocks until all currently-pending timers have completed, or
// timeout elapses first.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if atomic.LoadInt64(&s.pending) == 0 {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		wait := 10 * time.Millisecond
		if wait > remaining {
			wait = remaining
		}
		time.Sleep(wait)
	}
}

func marshalParams(params map[string]interface{}) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parseDuration accepts the grammar `Ns`, `Nm`, `Nh` (optionally with
// internal whitespace, e.g. "5 m").
func parseDuration(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	spec = strings.ReplaceAll(spec, " ", "")
	if spec == "" {
		return 0, fmt.Errorf("empty duration")
	}
	unit := spec[len(spec)-1]
	numPart := spec[:len(spec)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", spec, err)
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid duration unit in %q", spec)
	}
}
