/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rtnl

import (
	"context"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// Selector decides whether a dumped Link should be kept. DumpLinksSelect
// applies one client-side to the result of a full link dump.
type Selector interface {
	Matches(Link) bool
}

// MapSelector matches a Link whose Name is a key of the map with a true
// value -- the common case of "just these named interfaces."
type MapSelector map[string]bool

func (m MapSelector) Matches(l Link) bool { return m[l.Name] }

// CELSelector evaluates a Common Expression Language predicate against a
// Link's exported fields (name, mtu, up, kind), letting a caller express
// richer selection than MapSelector without a bespoke query language.
// Grounded on the device-filter CEL program used for DRA resourceslice
// selectors, generalized from a Kubernetes device shape to a Link shape.
type CELSelector struct {
	program cel.Program
}

// NewCELSelector compiles expr once; expr sees the variables name (string),
// mtu (int), up (bool), and kind (string).
func NewCELSelector(expr string) (*CELSelector, error) {
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("mtu", cel.IntType),
		cel.Variable("up", cel.BoolType),
		cel.Variable("kind", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "rtnl: cel environment")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "rtnl: compile selector %q", expr)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "rtnl: cel program")
	}
	return &CELSelector{program: prg}, nil
}

func (s *CELSelector) Matches(l Link) bool {
	up := l.Flags&0x1 != 0
	out, _, err := s.program.Eval(map[string]any{
		"name": l.Name,
		"mtu":  int64(l.MTU),
		"up":   up,
		"kind": l.Kind,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// DumpLinksSelect dumps every link and returns only those sel.Matches; the
// filter runs after the full dump has completed (spec §6 "selector-filtered
// dump").
func (c *Client) DumpLinksSelect(ctx context.Context, sel Selector) ([]Link, error) {
	links, err := c.DumpLinks(ctx)
	if err != nil {
		return nil, err
	}
	out := links[:0]
	for _, l := range links {
		if sel.Matches(l) {
			out = append(out, l)
		}
	}
	return out, nil
}
