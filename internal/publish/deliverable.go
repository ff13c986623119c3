package publish

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
)

// Deliverable is one component to publish, with the data overriding the
// defaults of each entity level
type Deliverable struct {
	AssetTypeData    *session.Data `mapstructure:"assettype_data"`
	AssetData        *session.Data `mapstructure:"asset_data"`
	AssetVersionData *session.Data `mapstructure:"assetversion_data"`
	ComponentData    *session.Data `mapstructure:"component_data"`

	ComponentPath      string `mapstructure:"component_path"`
	ComponentLocation  string `mapstructure:"component_location"`
	ComponentOverwrite bool   `mapstructure:"component_overwrite"`
	ThumbnailPath      string `mapstructure:"thumbnail_path"`
	Thumbnail          bool   `mapstructure:"thumbnail"`
	ProbeTags          bool   `mapstructure:"probe_tags"`

	// PropagateThumbToParents is the number of link entities, the task
	// first, that receive the thumbnail. Decodes from true (1) or false (0).
	PropagateThumbToParents int `mapstructure:"propagate_thumb_to_parents"`

	// Metadata pulled out of the sub-mappings
	AssetTypeMetadata    session.Metadata `mapstructure:"-"`
	AssetMetadata        session.Metadata `mapstructure:"-"`
	AssetVersionMetadata session.Metadata `mapstructure:"-"`
	ComponentMetadata    session.Metadata `mapstructure:"-"`

	// Component is set once the deliverable is published
	Component *session.Entity `mapstructure:"-"`
}

var (
	dataPtrType = reflect.TypeOf(&session.Data{})
	dataType    = reflect.TypeOf(session.Data{})
	intType     = reflect.TypeOf(0)
)

// DecodeDeliverable decodes a generic mapping. Sub-mappings given as
// *session.Data keep their order; plain maps are ordered by key.
func DecodeDeliverable(raw map[string]any) (*Deliverable, error) {
	d := &Deliverable{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			orderedDataHook,
			parentCountHook,
		),
		WeaklyTypedInput: true,
		Result:           d,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid deliverable: %w", err)
	}
	if err := d.extractMetadata(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the fields every deliverable needs
func (d *Deliverable) Validate() error {
	if d.ComponentPath == "" {
		return fmt.Errorf("component_path is required")
	}
	if d.PropagateThumbToParents < 0 {
		return fmt.Errorf("propagate_thumb_to_parents must not be negative")
	}
	return nil
}

func (d *Deliverable) extractMetadata() error {
	targets := []struct {
		name string
		data *session.Data
		dst  *session.Metadata
	}{
		{"assettype_data", d.AssetTypeData, &d.AssetTypeMetadata},
		{"asset_data", d.AssetData, &d.AssetMetadata},
		{"assetversion_data", d.AssetVersionData, &d.AssetVersionMetadata},
		{"component_data", d.ComponentData, &d.ComponentMetadata},
	}
	for _, t := range targets {
		md, err := popMetadata(t.data)
		if err != nil {
			return fmt.Errorf("%s: %w", t.name, err)
		}
		*t.dst = md
	}
	return nil
}

func orderedDataHook(from, to reflect.Type, data any) (any, error) {
	if to != dataPtrType && to != dataType {
		return data, nil
	}
	switch v := data.(type) {
	case *session.Data, session.Data, nil:
		return data, nil
	case map[string]any:
		return sortedData(v), nil
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[cast.ToString(k)] = val
		}
		return sortedData(m), nil
	}
	return nil, fmt.Errorf("expected a mapping, got %s", from)
}

func sortedData(m map[string]any) *session.Data {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := &session.Data{}
	for _, k := range keys {
		d.Set(k, m[k])
	}
	return d
}

func parentCountHook(from, to reflect.Type, data any) (any, error) {
	if to != intType {
		return data, nil
	}
	if b, ok := data.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return data, nil
}
