package config

import (
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Schema describes the config file as JSON Schema, keyed by the YAML field
// names.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{Type: "string", Description: "duration such as 10s or 1m30s"}
			}
			return nil
		},
	}
	s := r.Reflect(&Config{})
	s.Title = "toolchat configuration"
	return s
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "<redacted>"
	}
	return c
}
