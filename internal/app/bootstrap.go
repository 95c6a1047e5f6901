package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/adapter/postgres"
	"github.com/pztrick/television/internal/binding"
	"github.com/pztrick/television/internal/domain"
	"github.com/pztrick/television/internal/registry"
)

const (
	TaskModel  = "core.task"
	AuditModel = "core.auditentry"
)

// Stores holds the entity stores behind the built-in bindings.
type Stores struct {
	Tasks domain.EntityStore[Task]
	Audit domain.EntityStore[AuditEntry]
}

// NewStores returns Postgres stores when pool is set, in-memory stores otherwise.
// In memory, task creation times come from clock, matching the column default.
func NewStores(pool *pgxpool.Pool, clock clockwork.Clock) (Stores, error) {
	if pool == nil {
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		tasks, err := binding.NewMemoryStore[Task]()
		if err != nil {
			return Stores{}, err
		}
		audit, err := binding.NewMemoryStore[AuditEntry]()
		if err != nil {
			return Stores{}, err
		}
		return Stores{Tasks: stampedTasks{EntityStore: tasks, clock: clock}, Audit: audit}, nil
	}

	tasks, err := postgres.NewStore[Task](pool, "tasks", "created_at")
	if err != nil {
		return Stores{}, err
	}
	audit, err := postgres.NewStore[AuditEntry](pool, "audit_entries", "created_at")
	if err != nil {
		return Stores{}, err
	}
	return Stores{Tasks: tasks, Audit: audit}, nil
}

// stampedTasks owns CreatedAt: set on create, kept on update.
type stampedTasks struct {
	domain.EntityStore[Task]
	clock clockwork.Clock
}

func (s stampedTasks) Create(ctx context.Context, t Task) (Task, error) {
	t.CreatedAt = s.clock.Now().UTC()
	return s.EntityStore.Create(ctx, t)
}

func (s stampedTasks) Update(ctx context.Context, pk int64, t Task) (Task, error) {
	current, err := s.EntityStore.Get(ctx, pk)
	if err != nil {
		return Task{}, err
	}
	t.CreatedAt = current.CreatedAt
	return s.EntityStore.Update(ctx, pk, t)
}

// Options configures Bootstrap.
type Options struct {
	Broadcaster domain.GroupBroadcaster
	Stores      Stores
	Overrides   Overrides
	Metrics     *metrics.BindingMetrics
	Clock       clockwork.Clock
}

// App is the bootstrapped application: a sealed registry plus the bindings behind it.
type App struct {
	Registry *registry.Registry
	Tasks    *binding.Binding[Task]
	Audit    *binding.Binding[AuditEntry]

	broadcaster domain.GroupBroadcaster
	auditStore  domain.EntityStore[AuditEntry]
	clock       clockwork.Clock
}

// Bootstrap registers every listener and binding and seals the registry.
func Bootstrap(ctx context.Context, opts Options) (*App, error) {
	if opts.Broadcaster == nil {
		return nil, fmt.Errorf("bootstrap: broadcaster is required")
	}
	if opts.Stores.Tasks == nil || opts.Stores.Audit == nil {
		return nil, fmt.Errorf("bootstrap: entity stores are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	a := &App{
		Registry:    registry.New(),
		broadcaster: opts.Broadcaster,
		auditStore:  opts.Stores.Audit,
		clock:       opts.Clock,
	}

	if err := a.registerListeners(); err != nil {
		return nil, fmt.Errorf("bootstrap listeners: %w", err)
	}
	if err := a.registerBindings(opts); err != nil {
		return nil, fmt.Errorf("bootstrap bindings: %w", err)
	}

	a.Registry.Seal()
	logListeners(ctx, a.Registry)
	return a, nil
}

func (a *App) registerBindings(opts Options) error {
	set := binding.NewSet(a.Registry, opts.Broadcaster, opts.Metrics)

	taskSpec := binding.Spec[Task]{
		Model:       TaskModel,
		Fields:      binding.Only("title", "done", "owner_id"),
		SendMembers: []string{"summary", "created_at"},
		Role:        binding.RoleStaff,
		Store:       opts.Stores.Tasks,
	}
	applyOverride(&taskSpec, opts.Overrides)
	tasks, err := binding.Register(set, taskSpec)
	if err != nil {
		return err
	}

	auditSpec := binding.Spec[AuditEntry]{
		Model:  AuditModel,
		Fields: binding.All(),
		Role:   binding.RoleSuperuser,
		// Audit entries are written by the server, never by clients.
		MutationGuards: []registry.Guard{denyAll},
		Store:          opts.Stores.Audit,
	}
	applyOverride(&auditSpec, opts.Overrides)
	audit, err := binding.Register(set, auditSpec)
	if err != nil {
		return err
	}

	if unused := opts.Overrides.unused(set.Models()); len(unused) > 0 {
		sort.Strings(unused)
		return fmt.Errorf("%w: %s", errUnknownModel, strings.Join(unused, ", "))
	}

	a.Tasks, a.Audit = tasks, audit
	return nil
}

// CodeReadOnly rejects client writes to server-owned models.
const CodeReadOnly = "READONLY"

var denyAll = registry.Guard{
	Code:  CodeReadOnly,
	Allow: func(domain.Identity) bool { return false },
}

func logListeners(ctx context.Context, reg *registry.Registry) {
	entries := reg.List()
	slog.InfoContext(ctx, "Registered listeners", "count", len(entries))
	for _, e := range entries {
		slog.DebugContext(ctx, "Listener", "channel", e.Channel, "origin", e.Description)
	}
}
