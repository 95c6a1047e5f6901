package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/domain"
	"github.com/pztrick/television/internal/registry"
)

// Message is the inbound mutation carried as the first payload value on a stream channel.
type Message struct {
	Model  string                     `json:"model"`
	Action domain.Action              `json:"action"`
	PK     *int64                     `json:"pk"`
	Data   map[string]json.RawMessage `json:"data"`
}

// Event is the broadcast payload for one entity change.
type Event struct {
	Action domain.Action  `json:"action"`
	PK     int64          `json:"pk"`
	Data   map[string]any `json:"data"`
	Model  string         `json:"model"`
}

// inbound is the type-erased side of a Binding used by the stream listener.
type inbound interface {
	stream() domain.Channel
	apply(ctx context.Context, s domain.Session, msg Message) (any, error)
}

// Set holds every binding registered against one registry.
type Set struct {
	registry    *registry.Registry
	broadcaster domain.GroupBroadcaster
	metrics     *metrics.BindingMetrics

	mu     sync.RWMutex
	models map[string]inbound
}

// NewSet creates an empty binding set. Bindings register their channels on reg.
func NewSet(reg *registry.Registry, b domain.GroupBroadcaster, m *metrics.BindingMetrics) *Set {
	return &Set{
		registry:    reg,
		broadcaster: b,
		metrics:     m,
		models:      make(map[string]inbound),
	}
}

// Models returns the registered model labels, sorted.
func (s *Set) Models() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.models))
	for label := range s.models {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func (s *Set) add(label string, b inbound) error {
	s.mu.Lock()
	if _, dup := s.models[label]; dup {
		s.mu.Unlock()
		return fmt.Errorf("model %s: %w", label, domain.ErrDuplicateChannel)
	}
	s.models[label] = b
	s.mu.Unlock()

	// Every binding on a stream shares one internal listener; re-registering it is harmless.
	return s.registry.Register(registry.Listener{
		Channel:  b.stream(),
		Handler:  s.handleStream,
		Internal: true,
		Origin:   "binding stream " + string(b.stream()),
	})
}

func (s *Set) handleStream(ctx context.Context, sess domain.Session, args registry.Args) (any, error) {
	var msg Message
	if err := args.Decode(0, &msg); err != nil {
		return nil, fmt.Errorf("decode binding message: %w", err)
	}

	s.mu.RLock()
	b, ok := s.models[msg.Model]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no data binding for model %q", msg.Model)
	}
	return b.apply(ctx, sess, msg)
}

// publish broadcasts ev to every group in groups. All groups are attempted.
func (s *Set) publish(ctx context.Context, stream domain.Channel, groups []domain.Group, ev Event) error {
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(ev.Model, string(ev.Action)).Inc()
	}
	var firstErr error
	for _, g := range groups {
		if err := s.broadcaster.Broadcast(ctx, g, domain.Broadcast{Stream: stream, Payload: ev}); err != nil {
			slog.ErrorContext(ctx, "Failed to broadcast entity change",
				"model", ev.Model, "action", ev.Action, "pk", ev.PK, "group", g, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
