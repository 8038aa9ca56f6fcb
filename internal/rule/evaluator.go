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
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator is a compiled condition tree. Fact names, paths and comparison
// values are bound as environment variables, so rule content never becomes
// expression source. An Evaluator is safe for concurrent use.
type Evaluator struct {
	program *vm.Program
	source  string
	env     map[string]any
}

// Compile validates c and compiles it to a boolean program.
func Compile(c Condition) (*Evaluator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	b := &builder{env: operatorEnv()}
	b.env["factValue"] = func(name, path string) any { return nil }
	source := b.build(c)
	b.env["operands"] = b.operands

	program, err := expr.Compile(source, expr.Env(b.env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile conditions: %w", err)
	}

	return &Evaluator{program: program, source: source, env: b.env}, nil
}

// Match evaluates the conditions against facts.
func (e *Evaluator) Match(facts map[string]any) (bool, error) {
	env := maps.Clone(e.env)
	env["factValue"] = func(name, path string) any { return lookup(facts, name, path) }

	out, err := expr.Run(e.program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate conditions: %w", err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("conditions evaluated to %T, want bool", out)
	}
	return matched, nil
}

// Source returns the generated expression, for diagnostics.
func (e *Evaluator) Source() string {
	return e.source
}

type builder struct {
	env      map[string]any
	operands []any
}

func (b *builder) build(c Condition) string {
	switch {
	case len(c.All) > 0:
		return b.join(c.All, " && ")
	case len(c.Any) > 0:
		return b.join(c.Any, " || ")
	case c.Not != nil:
		return "!(" + b.build(*c.Not) + ")"
	default:
		i := strconv.Itoa(len(b.operands))
		b.operands = append(b.operands, c.Value)
		b.env["f"+i] = c.Fact
		b.env["p"+i] = c.Path
		return fmt.Sprintf("%s(factValue(f%s, p%s), operands[%s])", operatorFuncs[c.Operator], i, i, i)
	}
}

func (b *builder) join(children []Condition, op string) string {
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = b.build(child)
	}
	return "(" + strings.Join(parts, op) + ")"
}
