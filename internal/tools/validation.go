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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	argValidator *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		argValidator = validator.New(validator.WithRequiredStructEnabled())
		argValidator.RegisterTagNameFunc(jsonFieldName)
	})
	return argValidator
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// unmarshalAndValidate decodes tool arguments into T. Keys without
// omitempty in T's json tags are required, unknown keys are rejected, and
// validate tags are enforced. Errors name the offending field in quotes.
func unmarshalAndValidate[T any](args map[string]interface{}) (T, error) {
	var out T
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := checkRequired(reflect.TypeOf(out), args); err != nil {
		return out, err
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return out, fmt.Errorf("arguments are not valid JSON: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, describeDecodeError(err)
	}

	if err := getValidator().Struct(out); err != nil {
		return out, describeValidationError(err)
	}
	return out, nil
}

func checkRequired(t reflect.Type, args map[string]interface{}) error {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("json")
		name := jsonFieldName(field)
		if name == "" || strings.Contains(tag, ",omitempty") {
			continue
		}
		if value, ok := args[name]; !ok || value == nil {
			return fmt.Errorf("missing required parameter '%s'", name)
		}
	}
	return nil
}

func describeDecodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("invalid '%s' parameter: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	msg := err.Error()
	if field, ok := strings.CutPrefix(msg, "json: unknown field "); ok {
		return fmt.Errorf("unknown parameter '%s'", strings.Trim(field, `"`))
	}
	return fmt.Errorf("invalid arguments: %v", err)
}

func describeValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	fe := verrs[0]
	field := fe.Field()
	if ns := fe.Namespace(); strings.Count(ns, ".") > 1 {
		// Nested fields such as edits[0].oldText keep their path.
		field = ns[strings.Index(ns, ".")+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("missing or empty parameter '%s'", field)
	case "min":
		return fmt.Errorf("parameter '%s' must be at least %s", field, fe.Param())
	case "max":
		return fmt.Errorf("parameter '%s' must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Errorf("parameter '%s' must be one of [%s]", field, fe.Param())
	default:
		return fmt.Errorf("parameter '%s' failed %s validation", field, fe.Tag())
	}
}
