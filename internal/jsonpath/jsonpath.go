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

// Package jsonpath reads and writes dotted field paths (a.b.c) inside
// decoded JSON documents.
package jsonpath

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parse decodes one JSONL line into a document.
func Parse(line []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(line, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Marshal serializes a document back to one JSONL line (no trailing newline).
func Marshal(doc any) ([]byte, error) {
	return json.Marshal(doc)
}

// Get descends object keys along path. The second return is false when any
// step is missing or a non-object intermediate is hit.
func Get(doc any, path string) (any, bool) {
	current := doc
	for path != "" {
		var key string
		if idx := strings.IndexByte(path, '.'); idx >= 0 {
			key, path = path[:idx], path[idx+1:]
		} else {
			key, path = path, ""
		}
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// GetString returns the string at path, or false if absent or not a string.
func GetString(doc any, path string) (string, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetFloat returns the number at path, or def when the path is absent.
// A present non-numeric value is an error.
func GetFloat(doc any, path string, def float64) (float64, error) {
	v, ok := Get(doc, path)
	if !ok {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q is not a number: %v", path, v)
	}
	return f, nil
}

// GetBool returns the bool at path, or false if absent or not a bool.
func GetBool(doc any, path string) (bool, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Set writes val at path, creating intermediate objects as needed. Writing
// through an existing non-object intermediate is an error. The document root
// must be an object.
func Set(doc any, path string, val any) error {
	obj, ok := doc.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set %q: document is not an object", path)
	}
	keys := strings.Split(path, ".")
	for i, key := range keys[:len(keys)-1] {
		next, exists := obj[key]
		if !exists {
			child := map[string]any{}
			obj[key] = child
			obj = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot set %q: %q is not an object", path, strings.Join(keys[:i+1], "."))
		}
		obj = child
	}
	obj[keys[len(keys)-1]] = val
	return nil
}

// Remove deletes the value at path if present. Missing intermediates are a
// no-op.
func Remove(doc any, path string) {
	keys := strings.Split(path, ".")
	current := doc
	for _, key := range keys[:len(keys)-1] {
		obj, ok := current.(map[string]any)
		if !ok {
			return
		}
		current, ok = obj[key]
		if !ok {
			return
		}
	}
	if obj, ok := current.(map[string]any); ok {
		delete(obj, keys[len(keys)-1])
	}
}
