package conf

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaError reports a config file that failed schema validation. It
// carries the full validation result so callers can render individual
// findings.
type SchemaError struct {
	File   string
	Result *gojsonschema.Result
}

func newSchemaError(file string, result *gojsonschema.Result) *SchemaError {
	return &SchemaError{
		File:   file,
		Result: result,
	}
}

func (e *SchemaError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid config file ")
	sb.WriteString(e.File)

	for _, desc := range e.Result.Errors() {
		sb.WriteString("; ")
		sb.WriteString(desc.String())
	}

	return sb.String()
}
