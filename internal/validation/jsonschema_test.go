package validation

import (
	"testing"

	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *DocumentValidator {
	t.Helper()
	v, err := NewDocumentValidator()
	require.NoError(t, err)
	return v
}

func TestValidate_AcceptsRootDocument(t *testing.T) {
	err := newValidator(t).Validate([]byte(`{
		"endpoints": [{"id": "e1", "method": "GET", "path": "/users"}],
		"nodes": [
			{"id": "get-e1", "data": {"type": "get"}, "outputs": {"out": {"toNodeId": "r"}}},
			{"id": "r", "data": [], "outputs": []},
			{"id": "s", "data": null, "outputs": {"out": null}}
		]
	}`))
	assert.NoError(t, err)
}

func TestValidate_AcceptsNestedFlows(t *testing.T) {
	err := newValidator(t).Validate([]byte(`{
		"selectedEnvironment": "production",
		"environmentVariables": {"production": {"API": "x"}, "development": null},
		"flows": {
			"endpoints": [{"method": "POST", "path": "/orders"}],
			"nodes": [{"id": "post-1"}]
		}
	}`))
	assert.NoError(t, err)
}

func TestValidate_MalformedJSON(t *testing.T) {
	err := newValidator(t).Validate([]byte(`{"nodes": [`))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInvalidDocument, schema.Code(err))
}

func TestValidate_ShapeViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		loc  string
	}{
		{"node without id", `{"nodes": [{"data": {}}]}`, "/nodes/0"},
		{"empty node id", `{"nodes": [{"id": ""}]}`, "/nodes/0/id"},
		{"data is a string", `{"nodes": [{"id": "a", "data": "x"}]}`, "/nodes/0/data"},
		{"non-empty data list", `{"nodes": [{"id": "a", "data": [1]}]}`, "/nodes/0/data"},
		{"edge target not a string", `{"nodes": [{"id": "a", "outputs": {"out": {"toNodeId": 3}}}]}`, "/nodes/0/outputs"},
		{"endpoint without path", `{"endpoints": [{"method": "GET"}]}`, "/endpoints/0"},
		{"root is a list", `[]`, "/"},
	}

	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate([]byte(tt.doc))
			require.Error(t, err)

			var fe *schema.FlowError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, schema.ErrCodeValidation, fe.Code)

			violations, ok := fe.Details["violations"].([]string)
			require.True(t, ok)
			require.NotEmpty(t, violations)

			found := false
			for _, msg := range violations {
				if len(msg) >= len(tt.loc) && msg[:len(tt.loc)] == tt.loc {
					found = true
				}
			}
			assert.True(t, found, "no violation under %s in %v", tt.loc, violations)
		})
	}
}
