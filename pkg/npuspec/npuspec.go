// Package npuspec loads the structured documents sent along with a compile
// request: NPU specs, compiler configs and dynamic range tables. Files may be
// YAML or JSON; both are normalized to compact JSON.
package npuspec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type unmarshalFn func([]byte, any) error

// Load reads a YAML or JSON document from path.
func Load(path string) (json.RawMessage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("document path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return Parse(raw, filepath.Ext(path))
}

// Parse decodes data according to ext (".yaml", ".yml", ".json"); an unknown or
// empty ext tries each format in turn.
func Parse(data []byte, ext string) (json.RawMessage, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}
	known := false
	for _, d := range decoders {
		if ext == d.ext {
			known = true
		}
	}

	var lastErr error
	for _, d := range decoders {
		if known && ext != d.ext {
			continue
		}
		doc, err := decode(d.name, data, d.fn)
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("document format not recognized (expected YAML or JSON): %w", lastErr)
}

// LoadInto decodes the document at path into v.
func LoadInto(path string, v any) error {
	doc, err := Load(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func decode(name string, data []byte, fn unmarshalFn) (json.RawMessage, error) {
	var doc any
	if err := fn(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", name, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode %s document: empty", name)
	}
	out, err := json.Marshal(normalize(doc))
	if err != nil {
		return nil, fmt.Errorf("encode %s document as json: %w", name, err)
	}
	return out, nil
}

// normalize rewrites YAML mappings with non-string keys so encoding/json accepts them.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
