// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"math"
	"sort"
)

// Error is a configuration error. Runs fail with it before any output file
// is opened.
type Error struct {
	Name string // offending processor, key, or file
	Msg  string
}

func (e *Error) Error() string {
	if e.Name == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config %s: %s", e.Name, e.Msg)
}

// Errorf builds an Error for the named config element.
func Errorf(name, format string, args ...any) *Error {
	return &Error{Name: name, Msg: fmt.Sprintf(format, args...)}
}

// Options is an opaque options tree for one processor or command, as decoded
// from YAML or JSON.
type Options map[string]any

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// CheckKeys returns an Error naming the first key not in allowed.
func (o Options) CheckKeys(name string, allowed ...string) error {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = struct{}{}
	}
	var unknown []string
	for k := range o {
		if _, ok := allowedSet[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return Errorf(name, "unknown option %q", unknown[0])
}

// String returns the string at key, or def when absent.
func (o Options) String(key, def string) (string, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", Errorf(key, "expected string, got %T", v)
	}
	return s, nil
}

// RequireString returns the string at key or an Error when missing.
func (o Options) RequireString(key string) (string, error) {
	if !o.Has(key) {
		return "", Errorf(key, "required option is missing")
	}
	return o.String(key, "")
}

// Float returns the number at key, or def when absent. YAML integers are
// accepted.
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, Errorf(key, "expected number, got %T", v)
	}
	return f, nil
}

// Int returns the integer at key, or def when absent.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	f, ok := asFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, Errorf(key, "expected integer, got %v", v)
	}
	return int(f), nil
}

// Bool returns the bool at key, or def when absent.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, Errorf(key, "expected bool, got %T", v)
	}
	return b, nil
}

// StringSlice returns the list of strings at key, or nil when absent.
func (o Options) StringSlice(key string) ([]string, error) {
	v, ok := o[key]
	if !ok {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, Errorf(key, "expected list, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, Errorf(key, "expected list of strings, got element %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// IntSlice returns the list of integers at key, or nil when absent.
func (o Options) IntSlice(key string) ([]int, error) {
	v, ok := o[key]
	if !ok {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, Errorf(key, "expected list, got %T", v)
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		f, ok := asFloat(item)
		if !ok || f != math.Trunc(f) {
			return nil, Errorf(key, "expected integer, got %v", item)
		}
		out = append(out, int(f))
	}
	return out, nil
}

// IntSlices returns the list of integer lists at key, or nil when absent.
func (o Options) IntSlices(key string) ([][]int, error) {
	v, ok := o[key]
	if !ok {
		return nil, nil
	}
	outer, ok := v.([]any)
	if !ok {
		return nil, Errorf(key, "expected list of lists, got %T", v)
	}
	out := make([][]int, 0, len(outer))
	for _, item := range outer {
		inner, ok := item.([]any)
		if !ok {
			return nil, Errorf(key, "expected list of lists, got element %T", item)
		}
		ints := make([]int, 0, len(inner))
		for _, n := range inner {
			f, ok := asFloat(n)
			if !ok || f != math.Trunc(f) {
				return nil, Errorf(key, "expected integer, got %v", n)
			}
			ints = append(ints, int(f))
		}
		out = append(out, ints)
	}
	return out, nil
}

// Sub returns the nested Options at key, or an empty tree when absent.
func (o Options) Sub(key string) (Options, error) {
	v, ok := o[key]
	if !ok {
		return Options{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, Errorf(key, "expected mapping, got %T", v)
	}
	return Options(m), nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
