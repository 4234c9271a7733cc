// Package engerr provides the engine's unified error taxonomy (spec §7):
// contract-load, gene-load, validation, gene-runtime/timeout, kernel
// operation, mutation generation, pathway/fusion failure, snapshot, and
// federation integrity errors all carry a stable code plus structured
// details so callers can branch on kind without string matching.
package engerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error kind from the engine's taxonomy.
type Code string

const (
	CodeContractLoad         Code = "CONTRACT_LOAD"
	CodeGeneLoad             Code = "GENE_LOAD"
	CodeValidation           Code = "VALIDATION"
	CodeGeneRuntime          Code = "GENE_RUNTIME"
	CodeGeneTimeout          Code = "GENE_TIMEOUT"
	CodeKernelOp             Code = "KERNEL_OP"
	CodeMutationGen          Code = "MUTATION_GEN"
	CodePathwayFailure       Code = "PATHWAY_FAILURE"
	CodeFusionFailure        Code = "FUSION_FAILURE"
	CodeTopologyCycle        Code = "TOPOLOGY_CYCLE"
	CodeSnapshotError        Code = "SNAPSHOT_ERROR"
	CodeFederationIntegrity  Code = "FEDERATION_INTEGRITY"
	CodeLocusMismatch        Code = "LOCUS_MISMATCH"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInternal             Code = "INTERNAL"
	CodePoolAuth             Code = "POOL_AUTH"
)

// EngineError is a structured error with a stable code, human message,
// an HTTP-equivalent status (used only by the reference pool server),
// optional structured details, and an optionally wrapped cause.
type EngineError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail field and returns the receiver.
func (e *EngineError) WithDetails(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new EngineError.
func New(code Code, message string, httpStatus int) *EngineError {
	return &EngineError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates a new EngineError wrapping an underlying cause.
func Wrap(code Code, message string, httpStatus int, err error) *EngineError {
	return &EngineError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// ContractLoad reports a malformed .sg contract (fatal to loading that file).
func ContractLoad(path string, err error) *EngineError {
	return Wrap(CodeContractLoad, "failed to load contract", http.StatusBadRequest, err).
		WithDetails("path", path)
}

// GeneLoad reports a missing/non-callable entry point or sandbox import
// violation. Non-fatal to the orchestrator: treated as an allele failure.
func GeneLoad(alleleID string, err error) *EngineError {
	return Wrap(CodeGeneLoad, "failed to load gene", http.StatusUnprocessableEntity, err).
		WithDetails("allele_id", alleleID)
}

// Validation reports an output that is not a JSON object with a boolean
// "success" field.
func Validation(alleleID string, reason string) *EngineError {
	return New(CodeValidation, "invalid gene output", http.StatusUnprocessableEntity).
		WithDetails("allele_id", alleleID).
		WithDetails("reason", reason)
}

// GeneRuntime reports an exception raised from a gene's execute function.
func GeneRuntime(alleleID string, err error) *EngineError {
	return Wrap(CodeGeneRuntime, "gene raised during execution", http.StatusUnprocessableEntity, err).
		WithDetails("allele_id", alleleID)
}

// GeneTimeout reports a gene call exceeding its wall-clock budget.
func GeneTimeout(alleleID string, afterMillis int64) *EngineError {
	return New(CodeGeneTimeout, "gene execution timed out", http.StatusGatewayTimeout).
		WithDetails("allele_id", alleleID).
		WithDetails("after_ms", afterMillis)
}

// KernelOp reports a kernel operation failure (surfaced after rollback).
func KernelOp(operation string, err error) *EngineError {
	return Wrap(CodeKernelOp, "kernel operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

// MutationGen reports the mutation engine raising or returning unparsable
// source. One retry attempt is consumed per call.
func MutationGen(locus string, attempt int, err error) *EngineError {
	return Wrap(CodeMutationGen, "mutation generation failed", http.StatusBadGateway, err).
		WithDetails("locus", locus).
		WithDetails("attempt", attempt)
}

// PathwayFailure reports a pathway whose constituent steps exhausted.
func PathwayFailure(pathway string, err error) *EngineError {
	return Wrap(CodePathwayFailure, "pathway execution failed", http.StatusUnprocessableEntity, err).
		WithDetails("pathway", pathway)
}

// FusionFailure reports a fused gene raising; callers decompose and
// retry step-by-step.
func FusionFailure(pathway string, err error) *EngineError {
	return Wrap(CodeFusionFailure, "fused gene execution failed", http.StatusUnprocessableEntity, err).
		WithDetails("pathway", pathway)
}

// TopologyCycle reports a cyclic resource dependency graph.
func TopologyCycle(topology string) *EngineError {
	return New(CodeTopologyCycle, "topology has a cyclic dependency", http.StatusUnprocessableEntity).
		WithDetails("topology", topology)
}

// SnapshotError reports a duplicate name, missing target, or filesystem
// error while managing a snapshot.
func SnapshotError(name string, err error) *EngineError {
	return Wrap(CodeSnapshotError, "snapshot operation failed", http.StatusInternalServerError, err).
		WithDetails("name", name)
}

// FederationIntegrity reports a sha256 mismatch on allele import.
func FederationIntegrity(alleleID string) *EngineError {
	return New(CodeFederationIntegrity, "peer sha256 does not match source", http.StatusUnprocessableEntity).
		WithDetails("allele_id", alleleID)
}

// LocusMismatch reports a registration whose locus disagrees with the
// existing record for the same content hash — fatal to registration.
func LocusMismatch(id, existing, requested string) *EngineError {
	return New(CodeLocusMismatch, "allele already registered under a different locus", http.StatusConflict).
		WithDetails("allele_id", id).
		WithDetails("existing_locus", existing).
		WithDetails("requested_locus", requested)
}

// NotFound reports a missing resource by kind and id.
func NotFound(resource, id string) *EngineError {
	return New(CodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// PoolAuth reports a rejected or missing peer bearer token on a pool
// push/pull/status request.
func PoolAuth(peer string, reason string) *EngineError {
	return New(CodePoolAuth, "peer authentication failed", http.StatusUnauthorized).
		WithDetails("peer", peer).
		WithDetails("reason", reason)
}

// Internal wraps an unexpected internal failure.
func Internal(message string, err error) *EngineError {
	return Wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

// As extracts an *EngineError from an error chain.
func As(err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return nil
}

// HTTPStatus returns the HTTP-equivalent status for an error, defaulting
// to 500 when it is not an EngineError.
func HTTPStatus(err error) int {
	if ee := As(err); ee != nil {
		return ee.HTTPStatus
	}
	return http.StatusInternalServerError
}
