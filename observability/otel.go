package observability

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelSink counts lifecycle events through an OpenTelemetry meter. Each
// event type becomes a monotonic counter named kernelmesh.<type with dots
// preserved>; tenant_id and error_code data fields, when present, are
// attached as attributes. Export pipelines are the caller's concern: inject
// a meter from whatever provider the process configures.
type OTelSink struct {
	meter    metric.Meter
	mu       sync.Mutex
	counters map[EventType]metric.Int64Counter
}

// NewOTelSink creates a sink over the given meter.
func NewOTelSink(meter metric.Meter) *OTelSink {
	return &OTelSink{meter: meter, counters: make(map[EventType]metric.Int64Counter)}
}

// Emit increments the counter for the event type.
func (s *OTelSink) Emit(ctx context.Context, ev Event) {
	ctr, err := s.counter(ev.Type)
	if err != nil {
		return
	}

	attrs := make([]attribute.KeyValue, 0, 2)
	if tenant, ok := ev.Data["tenant_id"].(string); ok && tenant != "" {
		attrs = append(attrs, attribute.String("tenant_id", tenant))
	}
	if code, ok := ev.Data["error_code"].(string); ok && code != "" {
		attrs = append(attrs, attribute.String("error_code", code))
	}
	ctr.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (s *OTelSink) counter(t EventType) (metric.Int64Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctr, ok := s.counters[t]; ok {
		return ctr, nil
	}
	name := "kernelmesh." + strings.ReplaceAll(string(t), "/", ".")
	ctr, err := s.meter.Int64Counter(name, metric.WithDescription("count of "+string(t)+" events"))
	if err != nil {
		return nil, err
	}
	s.counters[t] = ctr
	return ctr, nil
}
