package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/domain"
	"github.com/pztrick/television/internal/hub"
)

// DefaultPrefix namespaces the pub/sub channels used by Layer.
const DefaultPrefix = "television:group:"

// Layer is a hub.Layer over Redis pub/sub. Each group maps to one channel
// and every instance pattern-subscribes to the prefix.
type Layer struct {
	rdb     *goredis.Client
	prefix  string
	metrics *metrics.RedisMetrics
}

var _ hub.Layer = (*Layer)(nil)

type layerMessage struct {
	Frame json.RawMessage `json:"frame"`
	Close bool            `json:"close,omitempty"`
}

// NewLayer creates a layer on rdb. An empty prefix uses DefaultPrefix. m may be nil.
func NewLayer(rdb *goredis.Client, prefix string, m *metrics.RedisMetrics) *Layer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Layer{rdb: rdb, prefix: prefix, metrics: m}
}

func (l *Layer) Publish(ctx context.Context, group domain.Group, frame []byte, closeAfter bool) error {
	payload, err := json.Marshal(layerMessage{Frame: frame, Close: closeAfter})
	if err != nil {
		return fmt.Errorf("encode layer message: %w", err)
	}
	if err := l.rdb.Publish(ctx, l.prefix+string(group), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", group, err)
	}
	l.count("published")
	return nil
}

// Subscribe blocks until ctx is done, handing every received frame to deliver.
func (l *Layer) Subscribe(ctx context.Context, deliver func(group domain.Group, frame []byte, closeAfter bool)) error {
	pubsub := l.rdb.PSubscribe(ctx, l.prefix+"*")
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s*: %w", l.prefix, err)
	}
	slog.Info("Channel layer subscribed", "pattern", l.prefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(msg, deliver)
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Layer) handle(msg *goredis.Message, deliver func(domain.Group, []byte, bool)) {
	group := strings.TrimPrefix(msg.Channel, l.prefix)
	var m layerMessage
	if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil || len(m.Frame) == 0 || group == "" {
		l.count("invalid")
		slog.Warn("Dropping malformed layer message", "channel", msg.Channel, "error", err)
		return
	}
	l.count("received")
	deliver(domain.Group(group), m.Frame, m.Close)
}

func (l *Layer) count(direction string) {
	if l.metrics != nil {
		l.metrics.LayerMessages.WithLabelValues(direction).Inc()
	}
}
