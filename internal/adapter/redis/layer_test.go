package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pztrick/television/internal/domain"
)

type delivery struct {
	group domain.Group
	frame string
	close bool
}

type deliveries struct {
	mu  sync.Mutex
	got []delivery
}

func (d *deliveries) deliver(group domain.Group, frame []byte, closeAfter bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, delivery{group: group, frame: string(frame), close: closeAfter})
}

func (d *deliveries) snapshot() []delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivery(nil), d.got...)
}

func TestLayer_HandleDecodesGroupAndFrame(t *testing.T) {
	m := newTestMetrics()
	l := NewLayer(nil, "", m)
	var d deliveries

	l.handle(&goredis.Message{
		Channel: DefaultPrefix + "users.42",
		Payload: `{"frame":{"stream":"television-updates","payload":{}},"close":true}`,
	}, d.deliver)

	got := d.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, domain.Group("users.42"), got[0].group)
	assert.JSONEq(t, `{"stream":"television-updates","payload":{}}`, got[0].frame)
	assert.True(t, got[0].close)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LayerMessages.WithLabelValues("received")))
}

func TestLayer_HandleDropsMalformed(t *testing.T) {
	m := newTestMetrics()
	l := NewLayer(nil, "tv:", m)
	var d deliveries

	l.handle(&goredis.Message{Channel: "tv:staff", Payload: "not json"}, d.deliver)
	l.handle(&goredis.Message{Channel: "tv:staff", Payload: `{"close":true}`}, d.deliver)
	l.handle(&goredis.Message{Channel: "tv:", Payload: `{"frame":{}}`}, d.deliver)

	assert.Empty(t, d.snapshot())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LayerMessages.WithLabelValues("invalid")))
}

func TestLayer_PublishReachesEverySubscriber(t *testing.T) {
	client := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	instances := make([]*deliveries, 3)
	var wg sync.WaitGroup
	for i := range instances {
		instances[i] = &deliveries{}
		layer := NewLayer(client, "", nil)
		wg.Add(1)
		go func(d *deliveries) {
			defer wg.Done()
			_ = layer.Subscribe(ctx, d.deliver)
		}(instances[i])
	}
	time.Sleep(200 * time.Millisecond)

	publisher := NewLayer(client, "", nil)
	require.NoError(t, publisher.Publish(ctx, domain.GroupStaff, []byte(`{"stream":"staff.log","payload":{"message":"hi"}}`), false))

	for i, d := range instances {
		assert.Eventually(t, func() bool { return len(d.snapshot()) == 1 }, 2*time.Second, 20*time.Millisecond, "instance %d", i)
		got := d.snapshot()[0]
		assert.Equal(t, domain.GroupStaff, got.group)
		assert.JSONEq(t, `{"stream":"staff.log","payload":{"message":"hi"}}`, got.frame)
		assert.False(t, got.close)
	}

	cancel()
	wg.Wait()
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url://", nil)
	assert.Error(t, err)
}
