// Package loader reads controller documents (JSON or YAML) from disk and builds
// the catalog the executor serves.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/internal/logging"
	"github.com/dominossauro/lowcode/internal/validation"
	"github.com/dominossauro/lowcode/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Loader turns flow files into controllers. The controller name is the file
// name without its extension, so flows/users.json serves /users/...
type Loader struct {
	validator *validation.DocumentValidator
	logger    *slog.Logger
}

// New creates a Loader. A nil validator skips the shape check.
func New(validator *validation.DocumentValidator, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{validator: validator, logger: logger}
}

// Supported reports whether path has a flow document extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// ControllerName derives the controller name from a file path.
func ControllerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadFile reads one document and builds its controller.
func (l *Loader) LoadFile(path string) (*graph.Controller, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file %s: %w", path, err)
	}
	return l.Load(ControllerName(path), filepath.Ext(path), raw)
}

// Load builds a controller from raw document bytes. ext selects the format
// (".yaml"/".yml", anything else is JSON).
func (l *Loader) Load(name, ext string, raw []byte) (*graph.Controller, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		converted, err := yamlToJSON(raw)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidDocument, "controller %q: invalid YAML: %s", name, err.Error()).
				WithCause(err)
		}
		raw = converted
	}

	if l.validator != nil {
		if err := l.validator.Validate(raw); err != nil {
			return nil, fmt.Errorf("controller %q: %w", name, err)
		}
	}

	doc, err := schema.ParseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("controller %q: %w", name, err)
	}
	return graph.NewController(name, doc)
}

// LoadDir loads every supported file directly under dir into a new catalog.
func (l *Loader) LoadDir(dir string) (*graph.Catalog, error) {
	ctrls, err := l.LoadControllers(dir)
	if err != nil {
		return nil, err
	}
	cat := graph.NewCatalog()
	if err := cat.Replace(ctrls); err != nil {
		return nil, err
	}
	l.logger.Info("flows loaded", "dir", dir, "controllers", cat.Len())
	return cat, nil
}

// LoadControllers builds one controller per supported file directly under dir,
// in file name order. Any failing file fails the whole load, so a reload never
// serves half a tree.
func (l *Loader) LoadControllers(dir string) ([]*graph.Controller, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read flows dir %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !Supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	ctrls := make([]*graph.Controller, 0, len(files))
	seen := make(map[string]string, len(files))
	var errs []error
	for _, f := range files {
		c, err := l.LoadFile(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := seen[c.Name()]; dup {
			errs = append(errs, schema.NewErrorf(schema.ErrCodeConflict,
				"controller %q defined by both %s and %s", c.Name(), prev, f))
			continue
		}
		seen[c.Name()] = f
		ctrls = append(ctrls, c)
		l.logger.Debug("controller loaded", "controller", c.Name(), "file", f,
			"endpoints", len(c.Endpoints()), "nodes", len(c.Nodes()))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ctrls, nil
}

// yamlToJSON decodes YAML and re-encodes it as JSON so both formats share one
// parser. yaml.v3 decodes mappings as map[string]any, which encoding/json accepts.
func yamlToJSON(raw []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]any{}
	}
	return json.Marshal(v)
}
