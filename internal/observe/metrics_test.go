package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// point is one flattened data point: its attributes rendered as k=v pairs
// and either a sum value or a histogram sample count.
type point struct {
	attrs string
	value int64
}

func points(t *testing.T, reader *sdkmetric.ManualReader, name string) []point {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	render := func(set attribute.Set) string {
		s := ""
		for _, kv := range set.ToSlice() {
			if s != "" {
				s += ","
			}
			s += string(kv.Key) + "=" + kv.Value.Emit()
		}
		return s
	}
	var out []point
	switch data := met.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			out = append(out, point{render(dp.Attributes), dp.Value})
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			out = append(out, point{render(dp.Attributes), int64(dp.Count)})
		}
	default:
		t.Fatalf("metric %q has unexpected data %T", name, met.Data)
	}
	return out
}

func valueAt(ps []point, attrs string) (int64, bool) {
	for _, p := range ps {
		if p.attrs == attrs {
			return p.value, true
		}
	}
	return 0, false
}

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		name   string
		record func(m *Metrics)
		metric string
		attrs  string
		want   int64
	}{
		{
			name:   "turns",
			record: func(m *Metrics) { m.RecordTurn(ctx, 0.02); m.RecordTurn(ctx, 0.04) },
			metric: "tradein.turns",
			want:   2,
		},
		{
			name:   "turn duration",
			record: func(m *Metrics) { m.RecordTurn(ctx, 0.02) },
			metric: "tradein.turn.duration",
			want:   1,
		},
		{
			name: "fields by name",
			record: func(m *Metrics) {
				m.RecordFieldExtracted(ctx, "brand")
				m.RecordFieldExtracted(ctx, "brand")
				m.RecordFieldExtracted(ctx, "storage")
			},
			metric: "tradein.fields_extracted",
			attrs:  "field=brand",
			want:   2,
		},
		{
			name: "lead calls by kind and status",
			record: func(m *Metrics) {
				m.RecordLeadCall(ctx, "update", "ok", 0.1)
				m.RecordLeadCall(ctx, "update", "error", 0.3)
				m.RecordLeadCall(ctx, "submit", "ok", 0.2)
			},
			metric: "tradein.lead_calls",
			attrs:  "kind=update,status=error",
			want:   1,
		},
		{
			name: "lead latency by kind only",
			record: func(m *Metrics) {
				m.RecordLeadCall(ctx, "update", "ok", 0.1)
				m.RecordLeadCall(ctx, "update", "error", 0.3)
			},
			metric: "tradein.lead_call.duration",
			attrs:  "kind=update",
			want:   2,
		},
		{
			name:   "confirmations",
			record: func(m *Metrics) { m.RecordConfirmation(ctx, "incomplete") },
			metric: "tradein.confirmations",
			attrs:  "outcome=incomplete",
			want:   1,
		},
		{
			name:   "quotes",
			record: func(m *Metrics) { m.RecordQuote(ctx, "clarify"); m.RecordQuote(ctx, "clarify") },
			metric: "tradein.quotes",
			attrs:  "outcome=clarify",
			want:   2,
		},
		{
			name:   "tool calls",
			record: func(m *Metrics) { m.RecordToolCall(ctx, "quote_top_up", "ok") },
			metric: "tradein.tool.calls",
			attrs:  "status=ok,tool=quote_top_up",
			want:   1,
		},
		{
			name: "grid load failures",
			record: func(m *Metrics) {
				m.RecordGridLoad(ctx, nil)
				m.RecordGridLoad(ctx, errors.New("no rows"))
			},
			metric: "tradein.grid.loads",
			attrs:  "outcome=error",
			want:   1,
		},
		{
			name: "active sessions",
			record: func(m *Metrics) {
				m.ActiveSessions.Add(ctx, 1)
				m.ActiveSessions.Add(ctx, 1)
				m.ActiveSessions.Add(ctx, -1)
			},
			metric: "tradein.active_sessions",
			want:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, reader := newTestMetrics(t)
			tt.record(m)

			ps := points(t, reader, tt.metric)
			got, ok := valueAt(ps, tt.attrs)
			if !ok {
				t.Fatalf("no point with attributes %q in %+v", tt.attrs, ps)
			}
			if got != tt.want {
				t.Errorf("%s{%s} = %d, want %d", tt.metric, tt.attrs, got, tt.want)
			}
		})
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
