package dispatcher

import (
	"context"
	"fmt"

	"github.com/careerforge/careerforge/internal/store/model"
)

// Handler consumes one work item. Handlers must be idempotent with respect to
// the entity's natural key: re-delivering an already-applied event is a no-op.
type Handler interface {
	Handle(ctx context.Context, item *model.WorkItem) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, item *model.WorkItem) error

func (f HandlerFunc) Handle(ctx context.Context, item *model.WorkItem) error {
	return f(ctx, item)
}

// Registry maps work item kinds to handlers. It is built once at process
// start and passed to the dispatcher by reference; there is no process-wide
// mutable registration.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(kind string, h Handler) error {
	if _, found := r.handlers[kind]; found {
		return fmt.Errorf("handler already registered for kind %q", kind)
	}
	r.handlers[kind] = h
	return nil
}

func (r *Registry) Resolve(kind string) (Handler, bool) {
	h, found := r.handlers[kind]
	return h, found
}

func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}
