// Package vault keeps the last raw response and snapshot on disk for
// debugging. One file per logical name; each write replaces the previous one.
package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const metadataKey = "metadata"

type Vault struct {
	dir  string
	name string
}

// New creates dir if needed. name prefixes every file.
func New(dir, name string) (*Vault, error) {
	if name == "" {
		name = "pickup"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Vault{dir: dir, name: name}, nil
}

func (v *Vault) base(extra string) string {
	return filepath.Join(v.dir, v.name+extra)
}

// WriteJSON stores a JSON object with info under the "metadata" key and
// returns the file path.
func (v *Vault) WriteJSON(raw []byte, info, extra string) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("archive expects a JSON object: %w", err)
	}
	if doc == nil {
		return "", fmt.Errorf("archive expects a JSON object, got null")
	}
	doc[metadataKey] = info

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}

	path := v.base(extra) + ".json"
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to save data: %w", err)
	}
	return path, nil
}

// WriteText stores text followed by an info line.
func (v *Vault) WriteText(text, info, extra string) (string, error) {
	path := v.base(extra) + ".txt"
	if err := os.WriteFile(path, []byte(text+"\n"+info), 0o644); err != nil {
		return "", fmt.Errorf("failed to save data: %w", err)
	}
	return path, nil
}

func (v *Vault) LoadText(extra string) (string, error) {
	b, err := os.ReadFile(v.base(extra) + ".txt")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (v *Vault) LoadJSON(extra string) (map[string]any, error) {
	b, err := os.ReadFile(v.base(extra) + ".json")
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
