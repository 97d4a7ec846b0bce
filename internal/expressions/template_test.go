package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- helpers ---

type mapSource map[string]map[string]any

func (m mapSource) NodeOutput(nodeID, key string) (any, bool) {
	v, ok := m[nodeID][key]
	return v, ok
}

func sampleSource() mapSource {
	return mapSource{
		"auth-1": {
			"out": map[string]any{
				"user": map[string]any{
					"id":    float64(42),
					"name":  "Ana",
					"roles": []any{"admin", "ops"},
					"ratio": 1.5,
					"ok":    true,
					"none":  nil,
				},
				"html": "<b>&</b>",
			},
		},
		"v-1": {
			"failure": []string{"Field is required", "Invalid email"},
		},
		"scalar": {"out": "plain"},
	}
}

// --- ResolveString ---

func TestResolveString_NoTemplates(t *testing.T) {
	r := NewTemplateResolver()
	assert.Equal(t, "hello world", r.ResolveString("hello world", sampleSource()))
	assert.Equal(t, "", r.ResolveString("", sampleSource()))
}

func TestResolveString_ScalarValues(t *testing.T) {
	r := NewTemplateResolver()
	src := sampleSource()

	cases := map[string]string{
		"{{auth-1.out.user.name}}":                  "Ana",
		"id={{auth-1.out.user.id}}":                 "id=42",
		"{{auth-1.out.user.ratio}}":                 "1.5",
		"{{auth-1.out.user.ok}}":                    "true",
		"[{{auth-1.out.user.none}}]":                "[]",
		"{{auth-1.out.user.roles.1}}":               "ops",
		"{{v-1.failure.0}}":                         "Field is required",
		"a {{auth-1.out.user.name}} b":              "a Ana b",
		"{{auth-1.out.html}}":                       "<b>&</b>",
		"{{{auth-1.out.user.name}}":                 "{Ana",
		"{{auth-1.out.user.name}}{{v-1.failure.1}}": "AnaInvalid email",
	}
	for in, want := range cases {
		assert.Equal(t, want, r.ResolveString(in, src), "input %q", in)
	}
}

func TestResolveString_CompositeValuesAsJSON(t *testing.T) {
	r := NewTemplateResolver()
	src := mapSource{
		"n": {"out": map[string]any{
			"list": []any{"ação", "<tag>"},
			"obj":  map[string]any{"b": float64(2), "a": "x/y"},
		}},
	}

	assert.Equal(t, `["ação","<tag>"]`, r.ResolveString("{{n.out.list}}", src))
	assert.Equal(t, `{"a":"x/y","b":2}`, r.ResolveString("{{n.out.obj}}", src))
}

func TestResolveString_UnresolvedLeftUnchanged(t *testing.T) {
	r := NewTemplateResolver()
	src := sampleSource()

	inputs := []string{
		"{{missing.out.x}}",
		"{{auth-1.nope.x}}",
		"{{auth-1.out.user.missing}}",
		"{{auth-1.out.user.name.deeper}}",
		"{{auth-1.out.user.roles.9}}",
		"{{auth-1.out.user.roles.x}}",
		"{{scalar.out.x}}",
		"{{only.two}}",
		"{{bad id.out.x}}",
		"{{auth-1.out.user.name",
		"{{}}",
		"{{ auth-1.out.user.name }}",
	}
	for _, in := range inputs {
		assert.Equal(t, in, r.ResolveString(in, src), "input %q", in)
	}
}

func TestResolveString_MatchesAreIndependent(t *testing.T) {
	r := NewTemplateResolver()
	got := r.ResolveString("{{missing.out.x}} and {{auth-1.out.user.name}}", sampleSource())
	assert.Equal(t, "{{missing.out.x}} and Ana", got)
}

func TestResolveString_IdempotentOnResolvedStrings(t *testing.T) {
	r := NewTemplateResolver()
	src := sampleSource()

	once := r.ResolveString("user {{auth-1.out.user.name}} roles {{auth-1.out.user.roles}} {{missing.a.b}}", src)
	twice := r.ResolveString(once, src)
	assert.Equal(t, once, twice)
}

func TestResolveString_NilSource(t *testing.T) {
	r := NewTemplateResolver()
	assert.Equal(t, "{{a.b.c}}", r.ResolveString("{{a.b.c}}", nil))
}

func TestResolveString_TypedContainers(t *testing.T) {
	r := NewTemplateResolver()
	src := mapSource{"n": {"out": map[string]string{"k": "v"}}}
	assert.Equal(t, "v", r.ResolveString("{{n.out.k}}", src))
}

// --- ResolveConfig ---

func TestResolveConfig_RecursesWithoutMutating(t *testing.T) {
	r := NewTemplateResolver()
	data := map[string]any{
		"type":  "loop",
		"items": "{{auth-1.out.user.roles}}",
		"nested": map[string]any{
			"name": "{{auth-1.out.user.name}}",
			"list": []any{"{{auth-1.out.user.id}}", float64(3), true},
		},
		"count": float64(5),
	}

	got := r.ResolveConfig(data, sampleSource())

	assert.Equal(t, `["admin","ops"]`, got["items"])
	assert.Equal(t, "Ana", got["nested"].(map[string]any)["name"])
	assert.Equal(t, []any{"42", float64(3), true}, got["nested"].(map[string]any)["list"])
	assert.Equal(t, float64(5), got["count"])

	// Source untouched.
	assert.Equal(t, "{{auth-1.out.user.roles}}", data["items"])
	assert.Equal(t, "{{auth-1.out.user.name}}", data["nested"].(map[string]any)["name"])
	assert.Equal(t, "{{auth-1.out.user.id}}", data["nested"].(map[string]any)["list"].([]any)[0])
}

func TestResolveConfig_Nil(t *testing.T) {
	assert.Nil(t, NewTemplateResolver().ResolveConfig(nil, sampleSource()))
}

// --- Stringify ---

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "false", Stringify(false))
	assert.Equal(t, "3", Stringify(3))
	assert.Equal(t, "100", Stringify(float64(100)))
	assert.Equal(t, "0.25", Stringify(0.25))
	assert.Equal(t, `{"a":[1,2]}`, Stringify(map[string]any{"a": []int{1, 2}}))
}
