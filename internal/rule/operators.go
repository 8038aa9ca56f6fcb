// Copyright 2026 The CyberVault Authors
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

package rule

import (
	"reflect"
	"strings"
)

// operatorFuncs maps operators to the helper each compiles to. The helper
// names are the only operator text that reaches the expression source.
var operatorFuncs = map[Operator]string{
	OpEqual:                "opEqual",
	OpNotEqual:             "opNotEqual",
	OpLessThan:             "opLessThan",
	OpLessThanInclusive:    "opLessThanInclusive",
	OpGreaterThan:          "opGreaterThan",
	OpGreaterThanInclusive: "opGreaterThanInclusive",
	OpIn:                   "opIn",
	OpNotIn:                "opNotIn",
	OpContains:             "opContains",
	OpDoesNotContain:       "opDoesNotContain",
	OpExists:               "opExists",
}

func operatorEnv() map[string]any {
	return map[string]any{
		"opEqual":                func(fact, value any) bool { return equal(fact, value) },
		"opNotEqual":             func(fact, value any) bool { return !equal(fact, value) },
		"opLessThan":             func(fact, value any) bool { return compare(fact, value, func(c int) bool { return c < 0 }) },
		"opLessThanInclusive":    func(fact, value any) bool { return compare(fact, value, func(c int) bool { return c <= 0 }) },
		"opGreaterThan":          func(fact, value any) bool { return compare(fact, value, func(c int) bool { return c > 0 }) },
		"opGreaterThanInclusive": func(fact, value any) bool { return compare(fact, value, func(c int) bool { return c >= 0 }) },
		"opIn":                   func(fact, value any) bool { return member(value, fact) },
		"opNotIn":                func(fact, value any) bool { return !member(value, fact) },
		"opContains":             func(fact, value any) bool { return contains(fact, value) },
		"opDoesNotContain":       func(fact, value any) bool { return !contains(fact, value) },
		"opExists":               func(fact, value any) bool { return fact != nil },
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers numerically and strings lexically. Mixed or
// missing operands never match.
func compare(a, b any, ok func(int) bool) bool {
	if fa, isNum := toFloat(a); isNum {
		fb, isNum := toFloat(b)
		if !isNum {
			return false
		}
		switch {
		case fa < fb:
			return ok(-1)
		case fa > fb:
			return ok(1)
		default:
			return ok(0)
		}
	}
	sa, isStr := a.(string)
	sb, isStr2 := b.(string)
	if !isStr || !isStr2 {
		return false
	}
	return ok(strings.Compare(sa, sb))
}

func member(list, item any) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(rv.Index(i).Interface(), item) {
			return true
		}
	}
	return false
}

func contains(container, item any) bool {
	if s, ok := container.(string); ok {
		sub, ok := item.(string)
		return ok && strings.Contains(s, sub)
	}
	return member(container, item)
}

// lookup resolves a fact and an optional dotted path ("$.a.b" or "a.b")
// into nested maps.
func lookup(facts map[string]any, fact, path string) any {
	v, ok := facts[fact]
	if !ok {
		return nil
	}
	path = strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
	if path == "" {
		return v
	}
	for _, key := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		if v, ok = m[key]; !ok {
			return nil
		}
	}
	return v
}

func (o Operator) String() string {
	return string(o)
}
