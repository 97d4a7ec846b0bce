// Package validation checks the shape of flow documents before they are parsed
// into controllers.
package validation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dominossauro/lowcode/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const documentSchemaURL = "https://lowcode.local/schemas/flow-document.json"

// documentSchemaJSON describes the accepted flow document shapes: nodes and
// endpoints at the root or nested under "flows". Editors emit [] or null for
// empty data/outputs, so both are allowed. Node data is otherwise free-form.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://lowcode.local/schemas/flow-document.json",
  "type": "object",
  "properties": {
    "endpoints": { "$ref": "#/$defs/endpoints" },
    "nodes": { "$ref": "#/$defs/nodes" },
    "flows": {
      "type": "object",
      "properties": {
        "endpoints": { "$ref": "#/$defs/endpoints" },
        "nodes": { "$ref": "#/$defs/nodes" }
      }
    },
    "selectedEnvironment": { "type": "string" },
    "environmentVariables": {
      "type": "object",
      "additionalProperties": { "type": ["object", "null"] }
    }
  },
  "$defs": {
    "endpoints": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["method", "path"],
        "properties": {
          "id": { "type": "string" },
          "method": { "type": "string", "minLength": 1 },
          "path": { "type": "string" }
        }
      }
    },
    "nodes": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "type": { "type": "string" },
          "data": {
            "anyOf": [
              { "type": "object", "properties": { "type": { "type": "string" } } },
              { "type": "array", "maxItems": 0 },
              { "type": "null" }
            ]
          },
          "outputs": {
            "anyOf": [
              {
                "type": "object",
                "additionalProperties": {
                  "anyOf": [
                    { "type": "object", "properties": { "toNodeId": { "type": "string" } } },
                    { "type": "null" }
                  ]
                }
              },
              { "type": "array", "maxItems": 0 },
              { "type": "null" }
            ]
          }
        }
      }
    }
  }
}`

// DocumentValidator checks raw flow documents against the document schema.
// It is safe for concurrent use.
type DocumentValidator struct {
	schema *jsonschema.Schema
}

// NewDocumentValidator compiles the embedded document schema.
func NewDocumentValidator() (*DocumentValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource(documentSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}
	compiled, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &DocumentValidator{schema: compiled}, nil
}

// Validate checks raw JSON. Malformed JSON is INVALID_DOCUMENT; a document of
// the wrong shape is VALIDATION_ERROR with every violation listed in details.
func (v *DocumentValidator) Validate(raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeInvalidDocument, "invalid flow document: %s", err.Error()).
			WithCause(err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError whose
// details list one "location: message" entry per leaf violation.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "flow document has %d problems", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
