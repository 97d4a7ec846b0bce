package nodes

import (
	"net/http"

	"github.com/dominossauro/lowcode/internal/expressions"
)

// BuiltinConfig carries the collaborators built-in handlers depend on.
type BuiltinConfig struct {
	CEL    expressions.Engine // condition node; not registered when nil
	DB     Querier            // query node
	Custom Predicate          // custom validation rules; defaults to ExprPredicate
	HTTP   *http.Client       // httpRequest node; http.DefaultClient when nil
}

// RegisterBuiltins registers all built-in node handlers in the given registry.
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig) error {
	custom := cfg.Custom
	if custom == nil {
		custom = NewExprPredicate()
	}

	all := make([]Handler, 0, 16)
	for _, m := range EntryMethods {
		all = append(all, Entry{Method: m})
	}
	all = append(all,
		Loop{},
		Validation{Custom: custom},
		Variable{TypeTag: "variable"},
		Variable{TypeTag: "setVariableValue"},
		Response{},
		NewTransform(),
		Query{DB: cfg.DB},
		HTTPRequest{Client: cfg.HTTP},
	)
	if cfg.CEL != nil {
		all = append(all, Condition{Engine: cfg.CEL})
	}

	for _, h := range all {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
