// Copyright 2025 The MADSci Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expression

import (
	"fmt"
	"reflect"
	"strings"
)

// builtins are the helper functions available inside every condition, on
// top of expr's own operators. "contains" is reserved by expr for string
// matching, so collection membership goes by has/includes.
var builtins = map[string]any{
	"has":      membership,
	"includes": membership,
	"length":   collectionLen,
}

// membership reports whether a collection holds a target: slice/array
// element, map key, or substring, depending on the collection's kind.
func membership(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("has requires 2 arguments, got %d", len(args))
	}
	collection, target := args[0], args[1]
	if collection == nil {
		return false, nil
	}

	v := reflect.ValueOf(collection)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if reflect.DeepEqual(v.Index(i).Interface(), target) {
				return true, nil
			}
		}
		return false, nil
	case reflect.Map:
		return v.MapIndex(reflect.ValueOf(target)).IsValid(), nil
	case reflect.String:
		substr, ok := target.(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(v.String(), substr), nil
	default:
		return false, nil
	}
}

// collectionLen returns the length of a slice, array, map, or string.
func collectionLen(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("length requires 1 argument, got %d", len(args))
	}
	if args[0] == nil {
		return 0, nil
	}
	v := reflect.ValueOf(args[0])
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return v.Len(), nil
	default:
		return nil, fmt.Errorf("length: unsupported type %T", args[0])
	}
}
