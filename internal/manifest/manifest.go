// Package manifest reads and writes deliverable manifests: YAML (or JSON)
// documents listing the components to publish for a task.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/nebukadhezer/pyblish-ftrack/internal/publish"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
)

// componentsKey wraps the list in a mapping document
const componentsKey = "components"

// ErrEmpty is returned for a manifest without deliverables
var ErrEmpty = errors.New("manifest lists no components")

// dataKeys are decoded to ordered data so identity queries follow the
// order the manifest gives
var dataKeys = map[string]bool{
	"assettype_data":    true,
	"asset_data":        true,
	"assetversion_data": true,
	"component_data":    true,
}

// Load reads the manifest at path
func Load(path string) ([]*publish.Deliverable, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	items, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Parse decodes manifest content: either a list of deliverables or a
// mapping with a "components" list
func Parse(content []byte) ([]*publish.Deliverable, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, ErrEmpty
	}

	list := doc.Content[0]
	if list.Kind == yaml.MappingNode {
		list = lookup(list, componentsKey)
		if list == nil {
			return nil, fmt.Errorf("mapping manifest needs a %q list", componentsKey)
		}
	}
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of components", list.Line)
	}
	if len(list.Content) == 0 {
		return nil, ErrEmpty
	}

	items := make([]*publish.Deliverable, 0, len(list.Content))
	for i, node := range list.Content {
		raw, err := decodeItem(node)
		if err != nil {
			return nil, fmt.Errorf("component %d (line %d): %w", i, node.Line, err)
		}
		d, err := publish.DecodeDeliverable(raw)
		if err != nil {
			return nil, fmt.Errorf("component %d (line %d): %w", i, node.Line, err)
		}
		items = append(items, d)
	}
	return items, nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func decodeItem(node *yaml.Node) (map[string]any, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("expected a mapping")
	}
	raw := make(map[string]any, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		if dataKeys[key] && value.Kind == yaml.MappingNode {
			data, err := orderedData(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			raw[key] = data
			continue
		}
		var v any
		if err := value.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		raw[key] = v
	}
	return raw, nil
}

// orderedData keeps the node's key order; nested values decode plainly
func orderedData(node *yaml.Node) (*session.Data, error) {
	data := &session.Data{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v any
		if err := node.Content[i+1].Decode(&v); err != nil {
			return nil, err
		}
		data.Set(node.Content[i].Value, v)
	}
	return data, nil
}

// Write stores items as a YAML list at path
func Write(path string, items []*publish.Deliverable) error {
	content, err := Marshal(items)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Marshal renders items as a YAML list. Unset fields are left out.
func Marshal(items []*publish.Deliverable) ([]byte, error) {
	list := &yaml.Node{Kind: yaml.SequenceNode}
	for _, d := range items {
		node, err := encodeItem(d)
		if err != nil {
			return nil, err
		}
		list.Content = append(list.Content, node)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(list); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeItem(d *publish.Deliverable) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value any) error {
		var v yaml.Node
		if err := v.Encode(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &v)
		return nil
	}

	if err := add("component_path", d.ComponentPath); err != nil {
		return nil, err
	}
	sections := []struct {
		key      string
		data     *session.Data
		metadata session.Metadata
	}{
		{"assettype_data", d.AssetTypeData, d.AssetTypeMetadata},
		{"asset_data", d.AssetData, d.AssetMetadata},
		{"assetversion_data", d.AssetVersionData, d.AssetVersionMetadata},
		{"component_data", d.ComponentData, d.ComponentMetadata},
	}
	for _, s := range sections {
		if s.data.Len() == 0 && len(s.metadata) == 0 {
			continue
		}
		node, err := encodeData(s.data, s.metadata)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.key, err)
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: s.key}, node)
	}

	optional := []struct {
		key   string
		set   bool
		value any
	}{
		{"component_location", d.ComponentLocation != "", d.ComponentLocation},
		{"component_overwrite", d.ComponentOverwrite, d.ComponentOverwrite},
		{"thumbnail_path", d.ThumbnailPath != "", d.ThumbnailPath},
		{"thumbnail", d.Thumbnail, d.Thumbnail},
		{"probe_tags", d.ProbeTags, d.ProbeTags},
		{"propagate_thumb_to_parents", d.PropagateThumbToParents > 0, d.PropagateThumbToParents},
	}
	for _, o := range optional {
		if !o.set {
			continue
		}
		if err := add(o.key, o.value); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func encodeData(data *session.Data, metadata session.Metadata) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	var err error
	data.Range(func(k string, v any) bool {
		var node yaml.Node
		if err = node.Encode(v); err != nil {
			return false
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &node)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		md := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range metadata.Keys() {
			md.Content = append(md.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: k},
				&yaml.Node{Kind: yaml.ScalarNode, Value: metadata[k], Style: yaml.DoubleQuotedStyle},
			)
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "metadata"}, md)
	}
	return m, nil
}
