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

package tools

import "context"

// HostAPIVersion identifies the tool API version supported by this host.
const HostAPIVersion = "v1"

const builtinToolVersion = "1.0.0"

// Tool represents a callable tool with validation and execution hooks.
// Execute returns a JSON-encodable result envelope; on failure the envelope
// is still returned when the tool could build one.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (any, error)
	Validate(args map[string]interface{}) error
	Version() string
	CompatibleWith(hostVersion string) bool
}

// ExecutorFunc is the function signature for tool implementations.
type ExecutorFunc func(ctx context.Context, args map[string]interface{}) (any, error)

// ToolDefinition provides a default implementation of Tool.
type ToolDefinition struct {
	NameValue          string
	DescriptionValue   string
	ParametersValue    map[string]interface{}
	ExecuteFunc        ExecutorFunc
	ValidateFunc       func(args map[string]interface{}) error
	VersionValue       string
	CompatibleWithFunc func(hostVersion string) bool
}

func (t *ToolDefinition) Name() string {
	return t.NameValue
}

func (t *ToolDefinition) Description() string {
	return t.DescriptionValue
}

func (t *ToolDefinition) Parameters() map[string]interface{} {
	return t.ParametersValue
}

func (t *ToolDefinition) Execute(ctx context.Context, args map[string]interface{}) (any, error) {
	if t.ExecuteFunc == nil {
		return nil, nil
	}
	return t.ExecuteFunc(ctx, args)
}

func (t *ToolDefinition) Validate(args map[string]interface{}) error {
	if t.ValidateFunc == nil {
		return nil
	}
	return t.ValidateFunc(args)
}

func (t *ToolDefinition) Version() string {
	return t.VersionValue
}

func (t *ToolDefinition) CompatibleWith(hostVersion string) bool {
	if t.CompatibleWithFunc != nil {
		return t.CompatibleWithFunc(hostVersion)
	}
	return hostVersion == HostAPIVersion
}

// newTypedTool builds a tool whose arguments decode into A. The parameter
// schema is generated from A, and run only ever sees validated arguments.
func newTypedTool[A any, R any](name, description string, run func(context.Context, A) (R, error)) *ToolDefinition {
	return &ToolDefinition{
		NameValue:        name,
		DescriptionValue: description,
		ParametersValue:  mustSchemaParametersFor[A](),
		ValidateFunc: func(args map[string]interface{}) error {
			_, err := unmarshalAndValidate[A](args)
			return err
		},
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (any, error) {
			typed, err := unmarshalAndValidate[A](args)
			if err != nil {
				return nil, NewArgumentError(name, err)
			}
			return run(ctx, typed)
		},
		VersionValue: builtinToolVersion,
	}
}
