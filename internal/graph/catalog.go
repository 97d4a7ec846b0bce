package graph

import (
	"sort"
	"sync"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// Catalog is the set of registered controllers, keyed by name.
// Reads are concurrent; Replace swaps the whole set atomically on reload.
type Catalog struct {
	mu          sync.RWMutex
	controllers map[string]*Controller
}

func NewCatalog() *Catalog {
	return &Catalog{controllers: make(map[string]*Controller)}
}

// Register adds a controller. Returns error if the name is taken.
func (c *Catalog) Register(ctrl *Controller) error {
	if ctrl == nil {
		return schema.NewError(schema.ErrCodeValidation, "controller is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.controllers[ctrl.Name()]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "controller %q already registered", ctrl.Name())
	}
	c.controllers[ctrl.Name()] = ctrl
	return nil
}

// Get returns the controller registered under name.
func (c *Catalog) Get(name string) (*Controller, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ctrl, ok := c.controllers[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeControllerNotFound, "controller %q not registered", name).
			WithDetails(map[string]any{"controller": name})
	}
	return ctrl, nil
}

// Names returns the registered controller names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.controllers))
	for n := range c.controllers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Replace swaps the registered controllers for ctrls. Duplicate names are
// rejected and leave the catalog untouched.
func (c *Catalog) Replace(ctrls []*Controller) error {
	next := make(map[string]*Controller, len(ctrls))
	for _, ctrl := range ctrls {
		if _, exists := next[ctrl.Name()]; exists {
			return schema.NewErrorf(schema.ErrCodeConflict, "controller %q defined twice", ctrl.Name())
		}
		next[ctrl.Name()] = ctrl
	}

	c.mu.Lock()
	c.controllers = next
	c.mu.Unlock()
	return nil
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.controllers)
}
