package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/kyleking/current/internal/errors"
)

// Format identifies a schema document encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath picks a format from the file extension. Unknown extensions
// are read as YAML, which also accepts JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Load reads and validates the schema document at path
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSchemaLoadError(path, err)
	}

	d, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, errors.NewSchemaLoadError(path, err)
	}

	return d, nil
}

// Parse decodes a schema document, keeping tables in document order
func Parse(data []byte, format Format) (*Descriptor, error) {
	var (
		tables []Table
		err    error
	)

	switch format {
	case FormatTOML:
		tables, err = parseTOML(data)
	case FormatJSON, FormatYAML:
		tables, err = parseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported schema format: %s", format)
	}

	if err != nil {
		return nil, err
	}

	return New(tables)
}

// parseYAML walks the node tree directly because decoding into a Go map
// would lose table order.
func parseYAML(data []byte) ([]Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("schema document is empty")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("schema must be a mapping of table name to columns (line %d)", root.Line)
	}

	tables := make([]Table, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]

		if key.Kind != yaml.ScalarNode || key.ShortTag() != "!!str" {
			return nil, fmt.Errorf("table name must be a string (line %d)", key.Line)
		}

		if value.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("table %q must map to a list of column names (line %d)", key.Value, value.Line)
		}

		cols := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.ShortTag() != "!!str" {
				return nil, fmt.Errorf("table %q has a non-string column (line %d)", key.Value, item.Line)
			}
			cols = append(cols, item.Value)
		}

		tables = append(tables, Table{Name: key.Value, Columns: cols})
	}

	return tables, nil
}

func parseTOML(data []byte) ([]Table, error) {
	raw := map[string]interface{}{}

	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	var tables []Table
	for _, key := range md.Keys() {
		if len(key) != 1 {
			continue
		}

		name := key[0]
		items, ok := raw[name].([]interface{})
		if !ok {
			return nil, fmt.Errorf("table %q must map to a list of column names", name)
		}

		cols := make([]string, 0, len(items))
		for _, item := range items {
			col, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("table %q has a non-string column", name)
			}
			cols = append(cols, col)
		}

		tables = append(tables, Table{Name: name, Columns: cols})
	}

	return tables, nil
}

// Encode writes the descriptor as a schema document that Parse accepts
func (d *Descriptor) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatYAML:
		return d.encodeYAML(w)
	case FormatJSON:
		return d.encodeJSON(w)
	case FormatTOML:
		return d.encodeTOML(w)
	default:
		return fmt.Errorf("unsupported schema format: %s", format)
	}
}

func (d *Descriptor) encodeYAML(w io.Writer) error {
	root := &yaml.Node{Kind: yaml.MappingNode}

	for _, t := range d.Tables() {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, c := range t.Columns {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c})
		}

		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.Name},
			seq,
		)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	return enc.Close()
}

func (d *Descriptor) encodeJSON(w io.Writer) error {
	var buf bytes.Buffer

	buf.WriteString("{")
	for i, t := range d.Tables() {
		if i > 0 {
			buf.WriteString(",")
		}

		name, err := json.Marshal(t.Name)
		if err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}

		cols, err := json.Marshal(t.Columns)
		if err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}

		buf.WriteString("\n  ")
		buf.Write(name)
		buf.WriteString(": ")
		buf.Write(cols)
	}

	if d.Len() > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")

	_, err := w.Write(buf.Bytes())

	return err
}

func (d *Descriptor) encodeTOML(w io.Writer) error {
	enc := toml.NewEncoder(w)

	// One table at a time so the encoder cannot reorder keys.
	for _, t := range d.Tables() {
		if err := enc.Encode(map[string][]string{t.Name: t.Columns}); err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}
	}

	return nil
}
