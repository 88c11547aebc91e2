// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package tools binds one security context to the filesystem and command
// operations and exposes them as schema-described tools.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	apperrors "fsguard/internal/errors"
	"fsguard/internal/limits"
	"fsguard/internal/paths"
	"fsguard/internal/shell"
)

// Policy restricts which registered tools are exposed. Deny always wins;
// a non-empty Allow hides every tool it does not name.
type Policy struct {
	Allow []string
	Deny  []string
}

// Config is everything a registry binds at construction time.
type Config struct {
	Security      *paths.SecurityContext
	Limits        limits.Limits
	Timeouts      TimeoutConfig
	OutputFilters OutputFilterConfig
	Command       shell.Policy
	// Shell overrides the shell used by the command tool.
	Shell  string
	Policy Policy
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// ToolResult is the outcome of one dispatched call. Result is always a
// JSON-encodable envelope, also when Error is set.
type ToolResult struct {
	Function string
	Result   any
	Error    error
}

// FailureResult is the envelope for calls that failed before a tool could
// build its own (unknown tool, policy, malformed arguments, panic).
type FailureResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// JSON renders the result envelope.
func (r *ToolResult) JSON() string {
	if r == nil {
		return "null"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.Result); err != nil {
		fallback, _ := json.Marshal(FailureResult{Error: fmt.Sprintf("failed to encode result: %v", err)})
		return string(fallback)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// Registry holds all available tools. It is immutable once built, so calls
// may be dispatched concurrently.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	allow    map[string]bool
	deny     map[string]bool
	sc       *paths.SecurityContext
	timeouts TimeoutConfig
	log      zerolog.Logger
}

// NewRegistry creates a registry bound to cfg.Security and registers the
// built-in tools.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Security == nil {
		return nil, apperrors.New(apperrors.CodeValidation, "a security context is required")
	}
	if cfg.Timeouts.Default == 0 && cfg.Timeouts.PerTool == nil {
		cfg.Timeouts = DefaultTimeoutConfig()
	}
	if cfg.OutputFilters == (OutputFilterConfig{}) {
		cfg.OutputFilters = DefaultOutputFilterConfig()
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	r := &Registry{
		tools:    make(map[string]Tool),
		allow:    toSet(cfg.Policy.Allow),
		deny:     toSet(cfg.Policy.Deny),
		sc:       cfg.Security,
		timeouts: cfg.Timeouts,
		log:      log,
	}
	if err := registerBuiltInTools(r, newBuiltins(cfg, log)); err != nil {
		return nil, err
	}
	return r, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// RegisterTool adds a tool to the registry.
func (r *Registry) RegisterTool(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return apperrors.New(apperrors.CodeValidation, "tool must have a name")
	}
	if !tool.CompatibleWith(HostAPIVersion) {
		return apperrors.Newf(apperrors.CodeValidation, "tool %s (version %s) is not compatible with host API %s", tool.Name(), tool.Version(), HostAPIVersion)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return apperrors.Newf(apperrors.CodeValidation, "tool %s is already registered", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Context returns the security context every tool is bound to.
func (r *Registry) Context() *paths.SecurityContext {
	return r.sc
}

// Allowed reports whether policy exposes the named tool.
func (r *Registry) Allowed(name string) bool {
	if r.deny[name] {
		return false
	}
	return len(r.allow) == 0 || r.allow[name]
}

// Tools returns the exposed tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for name, tool := range r.tools {
		if r.Allowed(name) {
			out = append(out, tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ToolNames returns the names of the exposed tools, sorted.
func (r *Registry) ToolNames() []string {
	tools := r.Tools()
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name())
	}
	return names
}

// Tool returns an exposed tool by name.
func (r *Registry) Tool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok || !r.Allowed(name) {
		return nil, false
	}
	return tool, true
}

// OpenAITools returns the exposed tools as OpenAI tool definitions.
func (r *Registry) OpenAITools() []openai.Tool {
	tools := r.Tools()
	defs := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return defs
}

// Execute validates args against the tool's schema and runs it under the
// tool's timeout. It never panics and always returns a result envelope.
func (r *Registry) Execute(ctx context.Context, function string, args map[string]interface{}) *ToolResult {
	start := time.Now()
	result := r.execute(ctx, function, args)

	event := r.log.Debug()
	if result.Error != nil {
		event = r.log.Warn().Str("code", string(apperrors.CodeOf(result.Error))).Err(result.Error)
	}
	event.Str("tool", function).
		Dur("duration", time.Since(start)).
		Bool("success", result.Error == nil).
		Msg("tool call")
	return result
}

func (r *Registry) execute(ctx context.Context, function string, args map[string]interface{}) *ToolResult {
	r.mu.RLock()
	tool, exists := r.tools[function]
	r.mu.RUnlock()
	if !exists {
		return failure(function, NewUnknownToolError(function, r.ToolNames()))
	}
	if !r.Allowed(function) {
		return failure(function, NewPolicyError(function))
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := tool.Validate(args); err != nil {
		return failure(function, NewArgumentError(function, err))
	}

	ctx, cancel := r.timeouts.WithTimeout(ctx, function)
	defer cancel()

	value, err := runTool(ctx, tool, args)
	if value == nil {
		if err == nil {
			err = NewExecutionError(function, errors.New("no result"))
		}
		return failure(function, err)
	}
	return &ToolResult{Function: function, Result: value, Error: err}
}

func runTool(ctx context.Context, tool Tool, args map[string]interface{}) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			value = nil
			err = NewExecutionError(tool.Name(), fmt.Errorf("panic: %v", rec))
		}
	}()
	return tool.Execute(ctx, args)
}

func failure(function string, err error) *ToolResult {
	return &ToolResult{
		Function: function,
		Result:   FailureResult{Success: false, Error: err.Error()},
		Error:    err,
	}
}

// ExecuteJSON runs a tool whose arguments arrive as a raw JSON object.
// Empty input and null mean no arguments.
func (r *Registry) ExecuteJSON(ctx context.Context, function string, raw []byte) *ToolResult {
	args := map[string]interface{}{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return failure(function, NewMalformedCallError(function, "arguments must be a JSON object"))
		}
	}
	return r.Execute(ctx, function, args)
}

// ExecuteOpenAIToolCall executes an OpenAI tool call payload.
func (r *Registry) ExecuteOpenAIToolCall(ctx context.Context, call openai.ToolCall) *ToolResult {
	name := call.Function.Name
	if name == "" {
		return failure("unknown_tool", NewMalformedCallError("unknown_tool", "tool call missing function name"))
	}
	return r.ExecuteJSON(ctx, name, []byte(call.Function.Arguments))
}

// Describe lists the exposed tools with their metadata, for transports and
// the tools command.
func (r *Registry) Describe() []Description {
	tools := r.Tools()
	out := make([]Description, 0, len(tools))
	for _, tool := range tools {
		out = append(out, Description{
			Name:        tool.Name(),
			Description: tool.Description(),
			Version:     tool.Version(),
			Parameters:  tool.Parameters(),
		})
	}
	return out
}

// Description is the advertised metadata of one tool.
type Description struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	Version     string                 `json:"version" yaml:"version"`
	Parameters  map[string]interface{} `json:"parameters" yaml:"parameters"`
}

// Unknown returns the names in list that are not registered tools.
func (r *Registry) Unknown(list []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var unknown []string
	for _, name := range list {
		if _, ok := r.tools[name]; !ok && !slices.Contains(unknown, name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
