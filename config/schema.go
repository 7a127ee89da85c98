package config

import (
	_ "embed"
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pyscope/pyscope/util"
)

//go:embed schema.json
var schemaBytes json.RawMessage
var schemaLoader = gojsonschema.NewBytesLoader(schemaBytes)

// NewSchema compiles the embedded schema that config files are
// validated against before being merged into the configuration.
func NewSchema() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(schemaLoader)
}

// MustSchema is NewSchema for initialization paths. The schema is
// embedded, so a compile failure is a programming error.
func MustSchema() *gojsonschema.Schema {
	return util.Must(NewSchema())
}
