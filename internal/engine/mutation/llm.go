package mutation

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/selfgene/sg/internal/contracts"
	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/extcall"
	"github.com/selfgene/sg/internal/httputil"
)

var (
	jsBlockRe      = regexp.MustCompile("(?s)```(?:javascript|js)\\s*\\n(.*?)```")
	genericBlockRe = regexp.MustCompile("(?s)```\\s*\\n(.*?)```")
	variantSepRe   = regexp.MustCompile(`---VARIANT---`)
)

// apiCaller sends a rendered prompt to an LLM provider and returns its raw
// text reply. LLMEngine's provider-specific subtypes implement only this.
type apiCaller interface {
	callAPI(ctx context.Context, prompt string) (string, error)
}

// LLMEngine is the provider-agnostic mutation engine: it builds prompts,
// extracts JavaScript from fenced code blocks, and splits multi-variant
// responses. Concrete providers (Claude, OpenAI-compatible) supply only
// the HTTP call.
type LLMEngine struct {
	caller    apiCaller
	contracts contracts.ContractProvider
	retry     *extcall.Client
}

// callWithRetry retries a transient provider failure (rate limit, timeout,
// connection reset) up to the default backoff schedule before giving up;
// every attempt calls the same apiCaller so there is no fallback source.
func (e *LLMEngine) callWithRetry(ctx context.Context, prompt string) (string, error) {
	retry := e.retry
	if retry == nil {
		retry = extcall.NewClient(extcall.DefaultConfig())
	}
	attempt := func(ctx context.Context) (interface{}, error) {
		return e.caller.callAPI(ctx, prompt)
	}
	result := retry.Call(ctx, attempt, attempt, attempt)
	if result.Err != nil {
		return "", result.Err
	}
	return result.Value.(string), nil
}

var _ Engine = (*LLMEngine)(nil)

func (e *LLMEngine) extractJS(text string) string {
	if m := jsBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := genericBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

func (e *LLMEngine) contractPrompt(locus string) string {
	if e.contracts == nil {
		return fmt.Sprintf("Locus: %s", locus)
	}
	gene, ok := e.contracts.Gene(locus)
	if !ok {
		return fmt.Sprintf("Locus: %s", locus)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Locus: %s\n", locus)
	fmt.Fprintf(&b, "Family: %s, Risk: %s\n", gene.Family, gene.Risk)
	if len(gene.Takes) > 0 {
		b.WriteString("Input fields:\n")
		for name, field := range gene.Takes {
			optional := ""
			if field.Optional {
				optional = " (optional)"
			}
			fmt.Fprintf(&b, "  %s: %s%s\n", name, field.Type, optional)
		}
	}
	if len(gene.Gives) > 0 {
		b.WriteString("Output fields:\n")
		for name, field := range gene.Gives {
			fmt.Fprintf(&b, "  %s: %s\n", name, field.Type)
		}
	}
	if len(gene.Preconds) > 0 {
		b.WriteString("Preconditions:\n")
		for _, c := range gene.Preconds {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	if len(gene.Postconds) > 0 {
		b.WriteString("Postconditions:\n")
		for _, c := range gene.Postconds {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	if len(gene.Failures) > 0 {
		b.WriteString("Failure modes:\n")
		for _, c := range gene.Failures {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	return b.String()
}

// Mutate asks the provider for a fixed gene given the failing source and
// error context.
func (e *LLMEngine) Mutate(ctx context.Context, mctx Context) (string, error) {
	prompt := fmt.Sprintf(`You are a gene mutation engine for a self-evolving execution runtime.

A gene is a JavaScript function named execute(input) that returns a JSON string.
The gene has access to a %q global (the kernel SDK handle).

## Contract
%s

## Current gene source (failing):
%s

## Failure context
Input: %s
Error: %s

## Task
Write a fixed version of this gene. The gene must:
1. Define an execute(input) function
2. Use the kernel handle for kernel operations (kernel.call(operation, args))
3. Return a JSON string with at least a boolean "success" field
4. Handle the error case described above

Return ONLY the JavaScript source in a `+"```javascript```"+` block.`,
		"kernel", e.contractPrompt(mctx.Locus), mctx.GeneSource, mctx.FailingInput, mctx.ErrorMessage)

	text, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return "", engerr.MutationGen(mctx.Locus, 0, err)
	}
	return e.extractJS(text), nil
}

// Generate proactively produces count implementations of locus.
func (e *LLMEngine) Generate(ctx context.Context, locus, contractPrompt string, count int) ([]string, error) {
	if contractPrompt == "" {
		contractPrompt = e.contractPrompt(locus)
	}

	var prompt string
	if count <= 1 {
		prompt = fmt.Sprintf(`You are a gene generation engine for a self-evolving execution runtime.

A gene is a JavaScript function named execute(input) that returns a JSON string.
The gene has access to a kernel handle in scope (kernel.call(operation, args)).

## Contract
%s

## Task
Write a JavaScript implementation of this gene. The gene must:
1. Define an execute(input) function
2. Use the kernel handle for kernel operations
3. Return a JSON string with at least a boolean "success" field
4. Handle all failure modes described in the contract

Return ONLY the JavaScript source in a `+"```javascript```"+` block.`, contractPrompt)
	} else {
		prompt = fmt.Sprintf(`You are a gene generation engine for a self-evolving execution runtime.

## Contract
%s

## Task
Write %d DIFFERENT implementations of this gene, each using a different approach.
Each must define an execute(input) function, use the kernel handle, and return
a JSON string with at least a boolean "success" field.

Separate each implementation with a line containing only: ---VARIANT---

Return ONLY JavaScript source in `+"```javascript```"+` blocks, separated by ---VARIANT---.`, contractPrompt, count)
	}

	text, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, engerr.MutationGen(locus, 0, err)
	}

	if count <= 1 {
		return []string{e.extractJS(text)}, nil
	}

	chunks := variantSepRe.Split(text, -1)
	variants := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		variants = append(variants, e.extractJS(chunk))
	}
	if len(variants) == 0 {
		variants = []string{e.extractJS(text)}
	}
	return variants, nil
}

// GenerateFused asks the provider to combine geneSources into one gene.
func (e *LLMEngine) GenerateFused(ctx context.Context, pathwayName string, geneSources []string, loci []string) (string, error) {
	var steps strings.Builder
	for i := range geneSources {
		locus := ""
		if i < len(loci) {
			locus = loci[i]
		}
		fmt.Fprintf(&steps, "### Step %d: %s\n%s\n%s\n", i+1, locus, e.contractPrompt(locus), geneSources[i])
	}

	prompt := fmt.Sprintf(`You are a gene fusion engine for a self-evolving execution runtime.

A fused gene combines multiple pathway steps into a single optimized gene.
The gene has access to a kernel handle in scope.

## Pathway: %s

%s

## Task
Write a single fused gene that performs all steps in sequence. The gene must:
1. Define an execute(input) function accepting the full pathway input
2. Use the kernel handle for all kernel operations
3. Return a JSON string with "success": true on success

Return ONLY the JavaScript source in a `+"```javascript```"+` block.`, pathwayName, steps.String())

	text, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return "", engerr.MutationGen(pathwayName, 0, err)
	}
	return e.extractJS(text), nil
}

// ClaudeEngine calls the Anthropic Messages API.
type ClaudeEngine struct {
	LLMEngine
	apiKey string
	model  string
	client *http.Client
}

// NewClaudeEngine constructs an LLM mutation engine speaking Anthropic's
// Messages API. model defaults to "claude-sonnet-4-5" when empty.
func NewClaudeEngine(apiKey, model string, contracts contracts.ContractProvider) *ClaudeEngine {
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	e := &ClaudeEngine{
		apiKey: apiKey,
		model:  model,
		client: httputil.CopyHTTPClientWithTimeout(nil, 60*time.Second, true),
	}
	e.LLMEngine = LLMEngine{caller: e, contracts: contracts}
	return e
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (e *ClaudeEngine) callAPI(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(claudeRequest{
		Model:     e.model,
		MaxTokens: 4096,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("anthropic api returned status %d", resp.StatusCode)
	}

	var out claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("anthropic response had no content")
	}
	return out.Content[0].Text, nil
}

// OpenAICompatEngine calls an OpenAI-compatible chat completions API.
// Used directly for OpenAI, and embedded for DeepSeek with a different
// base URL and default model.
type OpenAICompatEngine struct {
	LLMEngine
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAIEngine constructs an engine against the OpenAI chat
// completions API. model/baseURL default to gpt-4o / api.openai.com.
func NewOpenAIEngine(apiKey, model, baseURL string, contracts contracts.ContractProvider) *OpenAICompatEngine {
	return newOpenAICompatEngine(apiKey, model, "gpt-4o", baseURL, "https://api.openai.com/v1", contracts)
}

// NewDeepSeekEngine constructs an engine against DeepSeek's
// OpenAI-compatible chat completions API.
func NewDeepSeekEngine(apiKey, model, baseURL string, contracts contracts.ContractProvider) *OpenAICompatEngine {
	return newOpenAICompatEngine(apiKey, model, "deepseek-chat", baseURL, "https://api.deepseek.com", contracts)
}

func newOpenAICompatEngine(apiKey, model, defaultModel, baseURL, defaultBaseURL string, contracts contracts.ContractProvider) *OpenAICompatEngine {
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	e := &OpenAICompatEngine{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  httputil.CopyHTTPClientWithTimeout(nil, 60*time.Second, true),
	}
	e.LLMEngine = LLMEngine{caller: e, contracts: contracts}
	return e
}

type openAIRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message claudeMessage `json:"message"`
	} `json:"choices"`
}

func (e *OpenAICompatEngine) callAPI(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model:     e.model,
		MaxTokens: 4096,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai-compatible api returned status %d", resp.StatusCode)
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai-compatible response had no choices")
	}
	return out.Choices[0].Message.Content, nil
}
