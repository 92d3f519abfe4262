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

// Package config loads YAML/JSON command configuration into opaque option
// trees and validates them strictly.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a .yaml/.yml/.json file into an options tree.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, Errorf(path, "invalid JSON: %v", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, Errorf(path, "invalid YAML: %v", err)
		}
	default:
		return nil, Errorf(path, "unsupported config format %q", filepath.Ext(path))
	}
	return normalize(raw).(map[string]any), nil
}

// normalize rewrites yaml.v3 artifacts (map[any]any from older documents,
// ints) into the JSON-style tree the rest of the toolkit consumes.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// PipelineStep is one entry of a map pipeline.
type PipelineStep struct {
	Name   string
	Label  string
	Kwargs Options
}

// MapConfig is the parsed configuration for the map command.
type MapConfig struct {
	TextField string
	Pipeline  []PipelineStep
}

// LoadMapConfig loads and validates a map pipeline configuration. Unknown
// top-level keys and unknown step keys are config errors.
func LoadMapConfig(path string) (*MapConfig, error) {
	tree, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := tree.CheckKeys(path, "text_field", "pipeline"); err != nil {
		return nil, err
	}

	textField, err := tree.String("text_field", "text")
	if err != nil {
		return nil, err
	}

	rawPipeline, ok := tree["pipeline"]
	if !ok {
		return nil, Errorf(path, "missing pipeline")
	}
	steps, ok := rawPipeline.([]any)
	if !ok {
		return nil, Errorf(path, "pipeline must be a list, got %T", rawPipeline)
	}

	cfg := &MapConfig{TextField: textField}
	for i, rawStep := range steps {
		stepMap, ok := rawStep.(map[string]any)
		if !ok {
			return nil, Errorf(path, "pipeline step %d must be a mapping, got %T", i, rawStep)
		}
		step := Options(stepMap)
		if err := step.CheckKeys(fmt.Sprintf("pipeline[%d]", i), "name", "step", "kwargs"); err != nil {
			return nil, err
		}
		name, err := step.RequireString("name")
		if err != nil {
			return nil, Errorf(path, "pipeline step %d: missing name", i)
		}
		label, err := step.String("step", "")
		if err != nil {
			return nil, err
		}
		kwargs, err := step.Sub("kwargs")
		if err != nil {
			return nil, err
		}
		cfg.Pipeline = append(cfg.Pipeline, PipelineStep{Name: name, Label: label, Kwargs: kwargs})
	}
	return cfg, nil
}

// DefaultPartitionFileSize bounds partition shards when max_file_size is not
// configured.
const DefaultPartitionFileSize = 256_000_000

// PartitionConfig is the parsed configuration for discrete-partition.
type PartitionConfig struct {
	Name         string
	PartitionKey string
	Choices      []string
	MaxFileSize  int64
}

// LoadPartitionConfig loads and validates a discrete-partition configuration.
func LoadPartitionConfig(path string) (*PartitionConfig, error) {
	tree, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := tree.CheckKeys(path, "name", "partition_key", "choices", "max_file_size"); err != nil {
		return nil, err
	}
	name, err := tree.String("name", "")
	if err != nil {
		return nil, err
	}
	key, err := tree.RequireString("partition_key")
	if err != nil {
		return nil, err
	}
	choices, err := tree.StringSlice("choices")
	if err != nil {
		return nil, err
	}
	maxSize, err := tree.Int("max_file_size", DefaultPartitionFileSize)
	if err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		return nil, Errorf(path, "max_file_size must be positive, got %d", maxSize)
	}
	return &PartitionConfig{
		Name:         name,
		PartitionKey: key,
		Choices:      choices,
		MaxFileSize:  int64(maxSize),
	}, nil
}
