// Package compose parses and transforms docker-compose documents. The
// document is kept as a yaml node tree rather than unmarshalled into typed
// structs so that mapping key order, unknown keys, and comments survive the
// parse/marshal round trip — the derived file is read by humans.
package compose

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hackerrun/hackerrun/internal/errdefs"
)

// Document is a parsed compose file.
type Document struct {
	root *yaml.Node
}

// Parse decodes compose yaml into a Document.
func Parse(data []byte) (*Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse compose file: %w", err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return nil, errdefs.Validation("compose file is not a yaml mapping")
	}
	return &Document{root: node.Content[0]}, nil
}

// Load reads and parses the compose file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}
	return Parse(data)
}

// Marshal serializes the document back to yaml, preserving key order.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return nil, fmt.Errorf("failed to serialize compose document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to serialize compose document: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the serialized document to path.
func (d *Document) Save(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write compose file: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the document. Transforms are run against a
// clone so the source document is never mutated.
func (d *Document) Clone() *Document {
	return &Document{root: cloneNode(d.root)}
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = cloneNode(child)
		}
	}
	return &c
}

// Services returns the service names in document order. It fails with a
// ValidationError when the services section is absent or empty.
func (d *Document) Services() ([]string, error) {
	svcs, err := d.servicesNode()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(svcs.Content)/2)
	for i := 0; i < len(svcs.Content)-1; i += 2 {
		names = append(names, svcs.Content[i].Value)
	}
	return names, nil
}

// ServiceLabels returns the label sequence of the named service as strings.
// A missing labels key yields an empty slice; mapping-form labels are
// reported in "key=value" form without mutating the document.
func (d *Document) ServiceLabels(name string) ([]string, error) {
	svc, err := d.serviceNode(name)
	if err != nil {
		return nil, err
	}
	labels := mapValue(svc, "labels")
	if labels == nil {
		return nil, nil
	}
	switch labels.Kind {
	case yaml.SequenceNode:
		out := make([]string, 0, len(labels.Content))
		for _, item := range labels.Content {
			out = append(out, item.Value)
		}
		return out, nil
	case yaml.MappingNode:
		out := make([]string, 0, len(labels.Content)/2)
		for i := 0; i < len(labels.Content)-1; i += 2 {
			out = append(out, labels.Content[i].Value+"="+labels.Content[i+1].Value)
		}
		return out, nil
	}
	return nil, nil
}

func (d *Document) servicesNode() (*yaml.Node, error) {
	svcs := mapValue(d.root, "services")
	if svcs == nil || svcs.Kind != yaml.MappingNode || len(svcs.Content) == 0 {
		return nil, errdefs.Validation("no services defined in compose file")
	}
	return svcs, nil
}

func (d *Document) serviceNode(name string) (*yaml.Node, error) {
	svcs, err := d.servicesNode()
	if err != nil {
		return nil, err
	}
	svc := mapValue(svcs, name)
	if svc == nil {
		return nil, errdefs.Validation("service %q not found in compose file", name)
	}
	if svc.Kind == yaml.ScalarNode && svc.Tag == "!!null" {
		// "web:" with no body — promote to an empty mapping so transforms
		// have somewhere to attach keys.
		svc.Kind = yaml.MappingNode
		svc.Tag = "!!map"
		svc.Value = ""
	}
	return svc, nil
}

// mapValue returns the value node for key inside a mapping node, or nil.
func mapValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(m.Content)-1; i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// mapSet replaces the value for key in a mapping node, appending the pair
// when the key is not present. It returns the stored value node.
func mapSet(m *yaml.Node, key string, value *yaml.Node) *yaml.Node {
	for i := 0; i < len(m.Content)-1; i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return value
		}
	}
	m.Content = append(m.Content, scalarNode(key), value)
	return value
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func sequenceNode(items ...string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, item := range items {
		n.Content = append(n.Content, scalarNode(item))
	}
	return n
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}
