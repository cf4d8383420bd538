package delivery

import (
	"encoding/json"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

const maxTransformConfigBytes = 100 * 1024

// FieldTransform renames a single top-level field from Source to Target.
type FieldTransform struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// OutputConfig is a subscription's transformation configuration: a list
// of field renames applied, in order, to a published payload.
type OutputConfig struct {
	Transforms []FieldTransform `json:"transforms"`
}

// ParseOutputConfig decodes raw (a JSON object) into an OutputConfig,
// enforcing the 100 KiB size ceiling and rejecting non-object input.
func ParseOutputConfig(raw json.RawMessage) (*OutputConfig, error) {
	if len(raw) > maxTransformConfigBytes {
		return nil, cdberr.New(cdberr.Query, "output_config is too large")
	}

	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, cdberr.Wrap(cdberr.Deserialization, "output_config is not valid JSON", err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, cdberr.New(cdberr.Query, "output_config must be an object")
	}

	var cfg OutputConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, cdberr.Wrap(cdberr.Deserialization, "output_config does not match the expected shape", err)
	}
	return &cfg, nil
}

// Apply renames fields per cfg's Transforms. It returns an error if
// payload is not a JSON object or if any Source field is absent;
// Transform (below) wraps this with delivery's fallback-on-error
// semantics.
func (cfg *OutputConfig) Apply(payload json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, cdberr.Wrap(cdberr.Deserialization, "payload is not a JSON object", err)
	}

	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, tr := range cfg.Transforms {
		v, ok := fields[tr.Source]
		if !ok {
			return nil, cdberr.New(cdberr.Query, "transform source field not found: "+tr.Source)
		}
		delete(out, tr.Source)
		out[tr.Target] = v
	}

	return json.Marshal(out)
}

// Transform applies an optional transformation config to payload. A nil
// config (subscription has none) or an application error both fall back
// to the original, untransformed payload — delivery must never fail
// solely because a transform could not be applied.
func Transform(cfg *OutputConfig, payload json.RawMessage) json.RawMessage {
	if cfg == nil {
		return payload
	}
	out, err := cfg.Apply(payload)
	if err != nil {
		return payload
	}
	return out
}
