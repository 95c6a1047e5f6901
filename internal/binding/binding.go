package binding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/pztrick/television/internal/domain"
	"github.com/pztrick/television/internal/registry"
	"golang.org/x/sync/singleflight"
)

// Binding is a registered model. Its configuration is fixed at registration.
type Binding[T any] struct {
	set        *Set
	label      string
	streamName domain.Channel
	model      *model
	selected   []field
	allowed    map[string]field
	members    []member
	groupRule  GroupRule
	permission PermissionRule
	denyCode   string
	mutGuards  []registry.Guard
	store      domain.EntityStore[T]
	lists      singleflight.Group
	// generation advances on every emitted change. List calls only share a
	// store query started in the same generation.
	generation atomic.Uint64
}

// Register validates spec, adds the "<model>.list" channel and routes the model's
// stream messages. Errors here are startup errors.
func Register[T any](set *Set, spec Spec[T]) (*Binding[T], error) {
	if spec.Model == "" {
		return nil, errors.New("binding: model label is empty")
	}
	groups, perm, code, err := spec.rules()
	if err != nil {
		return nil, err
	}
	if spec.Store == nil {
		return nil, fmt.Errorf("binding %s: no entity store", spec.Model)
	}

	m, err := inspect[T]()
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", spec.Model, err)
	}

	selected, err := selectFields(m, spec.Fields, spec.Exclude)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", spec.Model, err)
	}

	var members []member
	for _, path := range spec.SendMembers {
		if path == "pk" {
			continue
		}
		mb, err := compileMember(m.typ, path)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", spec.Model, err)
		}
		members = append(members, mb)
	}

	stream := spec.Stream
	if stream == "" {
		stream = DefaultStream
	}

	b := &Binding[T]{
		set:        set,
		label:      spec.Model,
		streamName: stream,
		model:      m,
		selected:   selected,
		allowed:    make(map[string]field, len(selected)),
		members:    members,
		groupRule:  groups,
		permission: perm,
		denyCode:   code,
		mutGuards:  spec.MutationGuards,
		store:      spec.Store,
	}
	for _, f := range selected {
		b.allowed[f.name] = f
	}

	listGuard := registry.Guard{
		Code:  code,
		Allow: func(id domain.Identity) bool { return perm(id, ActionList, nil) },
	}
	if err := set.registry.Register(registry.Listener{
		Channel:  b.ListChannel(),
		Handler:  b.handleList,
		Guards:   []registry.Guard{listGuard},
		Internal: true,
		Origin:   "binding " + spec.Model + " list",
	}); err != nil {
		return nil, err
	}
	if err := set.add(spec.Model, b); err != nil {
		return nil, err
	}
	return b, nil
}

// selectFields normalizes the field selection once: all, a named subset, or none, minus exclusions.
func selectFields(m *model, sel Fields, exclude []string) ([]field, error) {
	if sel.none {
		return nil, nil
	}
	for _, name := range exclude {
		if _, ok := m.byName[name]; !ok {
			return nil, fmt.Errorf("excluded field %q is not declared", name)
		}
	}

	var out []field
	if len(sel.names) == 0 {
		for _, f := range m.fields {
			if !slices.Contains(exclude, f.name) {
				out = append(out, f)
			}
		}
		return out, nil
	}

	seen := make(map[string]bool, len(sel.names))
	for _, name := range sel.names {
		f, ok := m.byName[name]
		if !ok {
			return nil, fmt.Errorf("field %q is not declared", name)
		}
		if seen[name] || slices.Contains(exclude, name) {
			continue
		}
		seen[name] = true
		out = append(out, f)
	}
	return out, nil
}

// Model returns the model label.
func (b *Binding[T]) Model() string { return b.label }

// ListChannel returns "<model>.list".
func (b *Binding[T]) ListChannel() domain.Channel { return domain.Channel(b.label + ".list") }

// Fields returns the serialized field names in order.
func (b *Binding[T]) Fields() []string {
	out := make([]string, len(b.selected))
	for i, f := range b.selected {
		out[i] = f.name
	}
	return out
}

func (b *Binding[T]) stream() domain.Channel { return b.streamName }

// Serialize renders entity as selected fields plus pk plus send members.
// Member keys use "__" in place of dots and win over a field with the same key.
func (b *Binding[T]) Serialize(entity T) (map[string]any, error) {
	v := reflect.ValueOf(entity)
	data := make(map[string]any, len(b.selected)+len(b.members)+1)
	for _, f := range b.selected {
		data[f.name] = v.FieldByIndex(f.index).Interface()
	}
	data["pk"] = b.model.pkOf(v)
	for _, mb := range b.members {
		value, err := mb.resolve(v)
		if err != nil {
			return nil, fmt.Errorf("serialize %s member %s: %w", b.label, mb.key, err)
		}
		data[mb.key] = value
	}
	return data, nil
}

// List serializes every stored entity, newest id first. Concurrent calls share
// one store query unless a change was emitted after that query began.
func (b *Binding[T]) List(ctx context.Context) ([]map[string]any, error) {
	key := strconv.FormatUint(b.generation.Load(), 10)
	v, err, shared := b.lists.Do(key, func() (any, error) {
		if b.set.metrics != nil {
			b.set.metrics.ListsTotal.WithLabelValues(b.label).Inc()
		}
		entities, err := b.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", b.label, err)
		}
		out := make([]map[string]any, 0, len(entities))
		for _, e := range entities {
			data, err := b.Serialize(e)
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}
		return out, nil
	})
	if shared && b.set.metrics != nil {
		b.set.metrics.ListCoalesced.WithLabelValues(b.label).Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.([]map[string]any), nil
}

// Create hydrates a new entity from the allowed fields of data, stores it and
// broadcasts a create event.
func (b *Binding[T]) Create(ctx context.Context, actor domain.Identity, data map[string]json.RawMessage) (map[string]any, error) {
	var entity T
	if err := b.assign(reflect.ValueOf(&entity).Elem(), data); err != nil {
		return nil, err
	}
	created, err := b.store.Create(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", b.label, err)
	}
	return b.emit(ctx, actor, domain.ActionCreate, created)
}

// Update loads the entity with pk, applies the allowed fields of data, stores it
// and broadcasts an update event. Fields outside the allowed set are ignored.
func (b *Binding[T]) Update(ctx context.Context, actor domain.Identity, pk int64, data map[string]json.RawMessage) (map[string]any, error) {
	entity, err := b.store.Get(ctx, pk)
	if err != nil {
		return nil, fmt.Errorf("update %s %d: %w", b.label, pk, err)
	}
	if err := b.assign(reflect.ValueOf(&entity).Elem(), data); err != nil {
		return nil, err
	}
	updated, err := b.store.Update(ctx, pk, entity)
	if err != nil {
		return nil, fmt.Errorf("update %s %d: %w", b.label, pk, err)
	}
	return b.emit(ctx, actor, domain.ActionUpdate, updated)
}

// Delete removes the entity with pk and broadcasts its last state.
func (b *Binding[T]) Delete(ctx context.Context, actor domain.Identity, pk int64) (map[string]any, error) {
	entity, err := b.store.Get(ctx, pk)
	if err != nil {
		return nil, fmt.Errorf("delete %s %d: %w", b.label, pk, err)
	}
	if err := b.store.Delete(ctx, pk); err != nil {
		return nil, fmt.Errorf("delete %s %d: %w", b.label, pk, err)
	}
	return b.emit(ctx, actor, domain.ActionDelete, entity)
}

// Notify broadcasts a change made outside the binding, e.g. by a background job.
func (b *Binding[T]) Notify(ctx context.Context, actor domain.Identity, action domain.Action, entity T) error {
	_, err := b.emit(ctx, actor, action, entity)
	return err
}

func (b *Binding[T]) emit(ctx context.Context, actor domain.Identity, action domain.Action, entity T) (map[string]any, error) {
	b.generation.Add(1)
	data, err := b.Serialize(entity)
	if err != nil {
		return nil, err
	}
	ev := Event{
		Action: action,
		PK:     b.model.pkOf(reflect.ValueOf(entity)),
		Data:   data,
		Model:  b.label,
	}
	if err := b.set.publish(ctx, b.streamName, b.groupRule(actor), ev); err != nil {
		return data, fmt.Errorf("broadcast %s %s: %w", b.label, action, err)
	}
	return data, nil
}

// assign decodes the allowed keys of data into v. Unknown and disallowed keys are dropped.
func (b *Binding[T]) assign(v reflect.Value, data map[string]json.RawMessage) error {
	for name, raw := range data {
		f, ok := b.allowed[name]
		if !ok {
			continue
		}
		target := v.FieldByIndex(f.index).Addr().Interface()
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("%s field %s: %w", b.label, name, err)
		}
	}
	return nil
}

func (b *Binding[T]) handleList(ctx context.Context, _ domain.Session, _ registry.Args) (any, error) {
	return b.List(ctx)
}

// authorize runs the mutation guards, or the permission rule when none are set.
func (b *Binding[T]) authorize(id domain.Identity, action domain.Action, pk *int64) error {
	if len(b.mutGuards) > 0 {
		return registry.Check(id, b.mutGuards...)
	}
	if !b.permission(id, action, pk) {
		return &domain.AuthorizationError{Code: b.denyCode}
	}
	return nil
}

// apply executes one inbound stream message on behalf of s.
func (b *Binding[T]) apply(ctx context.Context, s domain.Session, msg Message) (any, error) {
	actor := s.Identity()
	if err := b.authorize(actor, msg.Action, msg.PK); err != nil {
		return nil, err
	}

	switch msg.Action {
	case domain.ActionCreate:
		return b.Create(ctx, actor, msg.Data)
	case domain.ActionUpdate:
		if msg.PK == nil {
			return nil, fmt.Errorf("update %s: missing pk", b.label)
		}
		return b.Update(ctx, actor, *msg.PK, msg.Data)
	case domain.ActionDelete:
		if msg.PK == nil {
			return nil, fmt.Errorf("delete %s: missing pk", b.label)
		}
		return b.Delete(ctx, actor, *msg.PK)
	default:
		return nil, fmt.Errorf("%s: unsupported action %q", b.label, msg.Action)
	}
}
