package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pztrick/television/internal/adapter/metrics"
)

// MetricsTracer implements pgx.QueryTracer, labelling queries by statement kind.
type MetricsTracer struct {
	m *metrics.DatabaseMetrics
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.DatabaseMetrics) *MetricsTracer {
	return &MetricsTracer{m: m}
}

type queryKey struct{}

type queryStart struct {
	at   time.Time
	name string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryKey{}, queryStart{at: time.Now(), name: queryName(data.SQL)})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryKey{}).(queryStart)
	if !ok || t.m == nil {
		return
	}
	t.m.QueryDuration.WithLabelValues(start.name).Observe(time.Since(start.at).Seconds())
	if data.Err != nil {
		t.m.ErrorsTotal.WithLabelValues(start.name).Inc()
	}
}

// queryName keeps label cardinality low: the lowercased leading keyword only.
func queryName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	name := strings.ToLower(fields[0])
	if len(name) > 20 {
		name = name[:20]
	}
	return name
}
