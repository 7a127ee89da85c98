package config

import (
	"testing"

	"github.com/xeipuuv/gojsonschema"
)

func TestNewSchema(t *testing.T) {
	_, err := NewSchema()
	if err != nil {
		t.Errorf("NewSchema() returned an error: %v", err)
	}
}

func TestSchema_AcceptsValidDocument(t *testing.T) {
	schema := MustSchema()

	doc := map[string]any{
		"log_level":  "debug",
		"log_format": "development",
		"run": map[string]any{
			"python":          "/usr/bin/python3",
			"sample_interval": "250ms",
			"grace_period":    "1s",
			"max_procs":       2,
		},
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		t.Fatalf("Validate() returned an error: %v", err)
	}
	if !result.Valid() {
		t.Errorf("valid document rejected: %v", result.Errors())
	}
}

func TestSchema_RejectsInvalidDocument(t *testing.T) {
	schema := MustSchema()

	doc := map[string]any{
		"log_level": "loud",
		"run": map[string]any{
			"sample_interval": "fast",
			"max_procs":       0,
		},
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		t.Fatalf("Validate() returned an error: %v", err)
	}
	if result.Valid() {
		t.Error("invalid document accepted")
	}
}
