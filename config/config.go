// Copyright 2025 Poiesic Systems
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


package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is a nested pipeline configuration mapping. The top level keys are
// stage or collaborator names (adapter, ingester, chunker, embedding,
// vectorstore, deid), each holding its own sub-configuration.
//
// A Config is treated as immutable for the duration of a pipeline run.
type Config map[string]any

// Load reads a YAML configuration file from disk.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a Config.
func Parse(data []byte) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Sub returns the nested mapping under key, or nil if the key is absent or
// not a mapping.
func (c Config) Sub(key string) map[string]any {
	v, ok := c[key]
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m
}

// Has reports whether key exists at the top level.
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// String returns the string value of key in m, or def when absent or not a
// string.
func String(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer value of key in m, or def. YAML decodes integers
// as int, but float64 is accepted for configs that round-trip through JSON.
func Int(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Bool returns the boolean value of key in m, or def when absent or not a
// boolean.
func Bool(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

// Duration returns the duration value of key in m, accepting either a
// duration string ("30s") or a number of seconds.
func Duration(m map[string]any, key string, def time.Duration) time.Duration {
	switch v := m[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		return def
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	default:
		return def
	}
}
