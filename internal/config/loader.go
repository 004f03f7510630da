package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKeys are the directive names a dbagent config file may use to pull
// in another file's settings before its own are layered on top. "$include"
// is preferred; "include" is accepted for files hand-written without the
// sigil.
var includeKeys = [...]string{"$include", "include"}

// LoadRaw reads path into a merged raw map, resolving $include directives
// depth-first: an included file's settings are layered first, then
// overridden by whatever path itself declares.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("dbagent: config path is required")
	}
	return loadRawFile(path, map[string]bool{})
}

func loadRawFile(path string, visiting map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if visiting[absPath] {
		return nil, fmt.Errorf("dbagent: config include cycle detected at %s", absPath)
	}
	visiting[absPath] = true
	defer delete(visiting, absPath)

	raw, err := readAndParse(absPath)
	if err != nil {
		return nil, err
	}

	includePaths, err := popIncludeDirective(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includePaths {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(baseDir, inc)
		}
		slog.Debug("resolving config include", "parent", absPath, "include", inc)
		incRaw, err := loadRawFile(inc, visiting)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}

	return mergeMaps(merged, raw), nil
}

// readAndParse loads a single config file's bytes, expanding ${VAR}
// references against the process environment before parsing.
func readAndParse(absPath string) (map[string]any, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))
	return parseRawBytes([]byte(expanded), absPath)
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(pathHint))
	if ext == ".json" || ext == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}
	return parseYAMLDocument(data)
}

func parseYAMLDocument(data []byte) (map[string]any, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("dbagent: failed to parse config: expected a single YAML document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// popIncludeDirective removes whichever of includeKeys is present in raw and
// normalizes its value into a path list.
func popIncludeDirective(raw map[string]any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var includeVal any
	for _, key := range includeKeys {
		if val, ok := raw[key]; ok {
			includeVal = val
			delete(raw, key)
			break
		}
	}
	if includeVal == nil {
		return nil, nil
	}

	switch typed := includeVal.(type) {
	case string:
		return []string{typed}, nil
	case []string:
		return typed, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			value, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("dbagent: include entries must be strings")
			}
			paths = append(paths, value)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("dbagent: include must be a string or a list of strings")
	}
}

// mergeMaps layers src over dst, recursing into nested maps so a partial
// override (e.g. just agent.max_tokens from an included file) doesn't wipe
// out sibling keys dst already set.
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// decodeRawConfig strict-decodes a merged raw map into Config, rejecting any
// field dbagent.yaml sets that Config does not declare.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("dbagent: failed to serialize merged config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("dbagent: failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("dbagent: failed to parse config: expected a single YAML document")
	}
	return &cfg, nil
}
