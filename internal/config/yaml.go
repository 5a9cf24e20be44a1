package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// detectFormat goes by extension; files without a known one are JSON when
// they start with '{', YAML otherwise.
func detectFormat(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".json":
		return formatJSON
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return formatJSON
	}
	return formatYAML
}

// coerceToJSONBytes returns data as JSON so one strict decoder serves both
// formats. A YAML stream must hold exactly one document.
func coerceToJSONBytes(name string, data []byte) ([]byte, string, error) {
	format := detectFormat(name, data)
	if format == formatJSON {
		return data, format, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, format, errors.New("yaml: empty document")
		}
		return nil, format, fmt.Errorf("yaml: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, format, errors.New("yaml: multiple documents are not supported")
	}

	j, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, format, fmt.Errorf("yaml to json: %w", err)
	}
	return j, format, nil
}

// stringKeys rewrites non-string mapping keys (e.g. `1: x`) so the tree can
// be marshaled as JSON.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case []any:
		for i, v := range x {
			x[i] = stringKeys(v)
		}
		return x
	}
	return in
}
