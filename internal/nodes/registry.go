package nodes

import (
	"context"
	"sort"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// Discoverer is the late-binding hook consulted when a type tag has no static
// handler. Returning (nil, nil) means the tag is unknown.
type Discoverer interface {
	Discover(ctx context.Context, typeTag string) (Handler, error)
}

// DiscovererFunc adapts a function to the Discoverer interface.
type DiscovererFunc func(ctx context.Context, typeTag string) (Handler, error)

func (f DiscovererFunc) Discover(ctx context.Context, typeTag string) (Handler, error) {
	return f(ctx, typeTag)
}

// Registry maps canonical type tags to handlers. Reads are safe for concurrent
// use; discovery is the only registration path after startup.
type Registry struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	discoverer Discoverer
}

// NewRegistry creates an empty Registry. discoverer may be nil.
func NewRegistry(discoverer Discoverer) *Registry {
	return &Registry{
		handlers:   make(map[string]Handler),
		discoverer: discoverer,
	}
}

// CanonicalType lower-cases the first rune of a type tag, so "Loop" and "loop"
// name the same handler.
func CanonicalType(tag string) string {
	r, size := utf8.DecodeRuneInString(tag)
	if r == utf8.RuneError {
		return tag
	}
	return string(unicode.ToLower(r)) + tag[size:]
}

// Register adds a handler under its canonical type. Returns error on duplicates.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	tag := CanonicalType(h.Type())
	if tag == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[tag]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler %q already registered", tag)
	}
	r.handlers[tag] = h
	return nil
}

// Resolve returns the handler for typeTag. A static handler wins; otherwise the
// discoverer is invoked once and the lookup retried.
func (r *Registry) Resolve(ctx context.Context, typeTag string) (Handler, error) {
	tag := CanonicalType(typeTag)
	if h, ok := r.lookup(tag); ok {
		return h, nil
	}

	notFound := schema.NewErrorf(schema.ErrCodeHandlerNotFound, "no handler for node type %q", typeTag).
		WithDetails(map[string]any{"type": typeTag})

	if r.discoverer == nil {
		return nil, notFound
	}

	h, err := r.discoverer.Discover(ctx, typeTag)
	if err != nil {
		return nil, notFound.WithCause(err)
	}
	if h != nil {
		r.mu.Lock()
		if _, exists := r.handlers[tag]; !exists {
			r.handlers[tag] = h
		}
		r.mu.Unlock()
	}

	if h, ok := r.lookup(tag); ok {
		return h, nil
	}
	return nil, notFound
}

func (r *Registry) lookup(tag string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tag]
	return h, ok
}

// Has reports whether a static or already discovered handler exists for typeTag.
func (r *Registry) Has(typeTag string) bool {
	_, ok := r.lookup(CanonicalType(typeTag))
	return ok
}

// Types returns the registered canonical type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
