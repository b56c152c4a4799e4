package tools

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Descriptor is one discovered tool. Immutable once returned from discovery.
type Descriptor struct {
	Name        string
	Description string
	InputSchema anthropic.ToolInputSchemaParam
}

// SchemaFromJSON translates a tool-server input schema (any JSON value that
// marshals to an object schema) into the endpoint shape. properties and
// required map onto their fields; every other keyword except type, such as
// $defs or additionalProperties, is carried unchanged. A nil schema yields an
// empty object schema.
func SchemaFromJSON(schema any) (anthropic.ToolInputSchemaParam, error) {
	out := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
	if schema == nil {
		return out, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return out, fmt.Errorf("marshal input schema: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return out, fmt.Errorf("decode input schema: %w", err)
	}

	extra := make(map[string]any, len(raw))
	for key, v := range raw {
		switch key {
		case "type":
		case "properties":
			props, ok := v.(map[string]any)
			if !ok && v != nil {
				return out, fmt.Errorf("input schema properties: want object, got %T", v)
			}
			if props != nil {
				out.Properties = props
			}
		case "required":
			req, err := stringList(v)
			if err != nil {
				return out, fmt.Errorf("input schema required: %w", err)
			}
			out.Required = req
		default:
			extra[key] = v
		}
	}
	if len(extra) > 0 {
		out.ExtraFields = extra
	}
	return out, nil
}

func stringList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("want array, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("want string entries, got %T", it)
		}
		out = append(out, s)
	}
	return out, nil
}

// CheckUnique returns an error naming the first duplicated tool name.
func CheckUnique(defs []Descriptor) error {
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("duplicate tool name %q", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// Union converts descriptors into request tool params, preserving order.
func Union(defs []Descriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		p := &anthropic.ToolParam{
			Name:        d.Name,
			InputSchema: d.InputSchema,
		}
		if d.Description != "" {
			p.Description = anthropic.String(d.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: p})
	}
	return out
}

// Names lists descriptor names in order.
func Names(defs []Descriptor) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}
