package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	instancesKey = "television:instances"
	// instanceTTL is how long a heartbeat keeps an instance listed.
	instanceTTL = 60 * time.Second
)

// InstanceInfo is one server instance as seen by the others.
type InstanceInfo struct {
	ID          string `json:"id"`
	Version     string `json:"version"`
	Connections int64  `json:"connections"`
	Heartbeat   int64  `json:"heartbeat"`
}

// Instances keeps this instance's heartbeat in a shared hash so operators can see
// every instance attached to the channel layer.
type Instances struct {
	rdb         *goredis.Client
	id          string
	version     string
	interval    time.Duration
	clock       clockwork.Clock
	connections func() int64
}

// NewInstances creates the heartbeat for instance id. connections reports the
// live WebSocket count and may be nil.
func NewInstances(rdb *goredis.Client, id, version string, interval time.Duration, clock clockwork.Clock, connections func() int64) *Instances {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if connections == nil {
		connections = func() int64 { return 0 }
	}
	return &Instances{
		rdb:         rdb,
		id:          id,
		version:     version,
		interval:    interval,
		clock:       clock,
		connections: connections,
	}
}

// ID returns this instance's id.
func (i *Instances) ID() string { return i.id }

// Run registers immediately, refreshes every interval and unregisters when ctx is done.
func (i *Instances) Run(ctx context.Context) {
	i.register(ctx)

	ticker := i.clock.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			i.register(ctx)
		case <-ctx.Done():
			i.unregister()
			return
		}
	}
}

func (i *Instances) register(ctx context.Context) {
	data, err := json.Marshal(InstanceInfo{
		ID:          i.id,
		Version:     i.version,
		Connections: i.connections(),
		Heartbeat:   i.clock.Now().Unix(),
	})
	if err != nil {
		return
	}
	if err := i.rdb.HSet(ctx, instancesKey, i.id, data).Err(); err != nil {
		slog.WarnContext(ctx, "Instance heartbeat failed", "instance_id", i.id, "error", err)
	}
}

func (i *Instances) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := i.rdb.HDel(ctx, instancesKey, i.id).Err(); err != nil {
		slog.Warn("Instance unregister failed", "instance_id", i.id, "error", err)
	}
}

// Active returns the instances with a heartbeat inside instanceTTL, sorted by id.
// Stale and unreadable entries are pruned.
func (i *Instances) Active(ctx context.Context) ([]InstanceInfo, error) {
	all, err := i.rdb.HGetAll(ctx, instancesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}

	now := i.clock.Now().Unix()
	active := []InstanceInfo{}
	var stale []string
	for id, data := range all {
		var info InstanceInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil || now-info.Heartbeat >= int64(instanceTTL.Seconds()) {
			stale = append(stale, id)
			continue
		}
		active = append(active, info)
	}
	if len(stale) > 0 {
		if err := i.rdb.HDel(ctx, instancesKey, stale...).Err(); err != nil {
			slog.WarnContext(ctx, "Failed to prune stale instances", "count", len(stale), "error", err)
		}
	}

	sort.Slice(active, func(a, b int) bool { return active[a].ID < active[b].ID })
	return active, nil
}
