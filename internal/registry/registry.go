package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/pztrick/television/internal/domain"
)

// Handler answers one request. The returned value becomes the reply payload.
type Handler func(ctx context.Context, s domain.Session, args Args) (any, error)

// Listener binds a handler and its guards to one channel.
type Listener struct {
	Channel domain.Channel
	Handler Handler
	Guards  []Guard
	// Internal marks listeners generated by this module (data bindings).
	// An internal listener may replace another internal listener before Seal.
	Internal bool
	// Origin describes where the handler comes from. Defaults to the function name.
	Origin string
}

// Authorize runs the listener's guards against id.
func (l *Listener) Authorize(id domain.Identity) error {
	return Check(id, l.Guards...)
}

// Entry is one line of the diagnostic listing.
type Entry struct {
	Channel     domain.Channel `json:"channel"`
	Description string         `json:"description"`
}

// Registry is the channel-to-listener table.
type Registry struct {
	mu        sync.RWMutex
	listeners map[domain.Channel]*Listener
	order     []domain.Channel
	sealed    bool
}

// New creates an empty, unsealed registry.
func New() *Registry {
	return &Registry{
		listeners: make(map[domain.Channel]*Listener),
	}
}

// Register adds l to the registry.
//
// A channel may be registered once. Before Seal, an internal listener silently
// replaces an existing internal listener on the same channel and keeps its
// position in the listing.
func (r *Registry) Register(l Listener) error {
	if l.Channel == "" {
		return errors.New("listener channel is empty")
	}
	if l.Handler == nil {
		return fmt.Errorf("listener %q has no handler", l.Channel)
	}
	if l.Origin == "" {
		l.Origin = funcName(l.Handler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.listeners[l.Channel]; ok {
		if !r.sealed && existing.Internal && l.Internal {
			r.listeners[l.Channel] = &l
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrDuplicateChannel, l.Channel)
	}
	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", domain.ErrRegistrySealed, l.Channel)
	}

	r.listeners[l.Channel] = &l
	r.order = append(r.order, l.Channel)
	return nil
}

// Listen registers handler on channel with the given guards.
func (r *Registry) Listen(channel domain.Channel, handler Handler, guards ...Guard) error {
	return r.Register(Listener{Channel: channel, Handler: handler, Guards: guards})
}

// Seal ends the bootstrap phase. Afterwards the registry only serves lookups.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Resolve returns the listener for channel.
func (r *Registry) Resolve(channel domain.Channel) (*Listener, error) {
	r.mu.RLock()
	l, ok := r.listeners[channel]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.ListenerNotFoundError{Channel: channel}
	}
	return l, nil
}

// List returns every registered channel in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.order))
	for _, ch := range r.order {
		entries = append(entries, Entry{Channel: ch, Description: r.listeners[ch].Origin})
	}
	return entries
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func funcName(h Handler) string {
	fn := runtime.FuncForPC(reflect.ValueOf(h).Pointer())
	if fn == nil {
		return "unknown"
	}
	name := fn.Name()
	// Strip the module prefix, keep package.func.
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
