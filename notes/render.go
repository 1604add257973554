package notes

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Format selects a rendering for parsed entries.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat recognizes the supported rendering formats.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown format %q, want json or yaml", s)
	}
}

// Render serializes entries in the requested format.
func Render(entries []Entry, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return nil, fmt.Errorf("rendering entries as JSON: %w", err)
		}
		return buf.Bytes(), nil
	case FormatYAML:
		out, err := yaml.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("rendering entries as YAML: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
}
