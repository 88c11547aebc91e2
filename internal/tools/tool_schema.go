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

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/567-labs/instructor-go/pkg/instructor"
)

const maxSchemaRefDepth = 16

func mustSchemaParametersFor[T any]() map[string]interface{} {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		panic("schema type is nil")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	params, err := schemaParametersForType(t)
	if err != nil {
		panic(err)
	}
	return params
}

// schemaParametersForType returns a self-contained object schema for t.
// Nested argument types (edit operations) are emitted as separate
// definitions, so references to them are inlined.
func schemaParametersForType(t reflect.Type) (map[string]interface{}, error) {
	schema, err := instructor.NewSchema(t)
	if err != nil {
		return nil, err
	}

	defs := make(map[string]map[string]interface{}, len(schema.Functions))
	for _, fn := range schema.Functions {
		params, err := jsonSchemaToMap(fn.Parameters)
		if err != nil {
			return nil, err
		}
		defs[fn.Name] = params
	}

	root, ok := defs[t.Name()]
	if !ok {
		return nil, fmt.Errorf("schema definition %q not found", t.Name())
	}
	for _, key := range []string{"$defs", "definitions"} {
		if embedded, ok := root[key].(map[string]interface{}); ok {
			for name, def := range embedded {
				if m, ok := def.(map[string]interface{}); ok {
					defs[name] = m
				}
			}
			delete(root, key)
		}
	}

	inlined, err := inlineRefs(root, defs, 0)
	if err != nil {
		return nil, err
	}
	params := inlined.(map[string]interface{})
	delete(params, "$schema")
	delete(params, "$id")
	params["type"] = "object"
	if _, ok := params["properties"]; !ok {
		params["properties"] = map[string]interface{}{}
	}
	return params, nil
}

func inlineRefs(node interface{}, defs map[string]map[string]interface{}, depth int) (interface{}, error) {
	if depth > maxSchemaRefDepth {
		return nil, fmt.Errorf("schema references nested too deeply")
	}
	switch v := node.(type) {
	case map[string]interface{}:
		if ref, ok := v["$ref"].(string); ok {
			name := ref[strings.LastIndex(ref, "/")+1:]
			def, ok := defs[name]
			if !ok {
				return nil, fmt.Errorf("schema reference %q not found", ref)
			}
			return inlineRefs(def, defs, depth+1)
		}
		out := make(map[string]interface{}, len(v))
		for key, child := range v {
			resolved, err := inlineRefs(child, defs, depth)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			resolved, err := inlineRefs(child, defs, depth)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return node, nil
	}
}

func jsonSchemaToMap(schema interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}
