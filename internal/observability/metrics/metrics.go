package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	httpRequests       metric.Int64Counter
	httpDuration       metric.Float64Histogram
	eligibilityOutcome metric.Int64Counter
	sizeSelections     metric.Int64Counter
	receptions         metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "dotation"
	}
	meter := provider.Meter(name)

	httpRequests, err := meter.Int64Counter("dotation_http_requests_total")
	if err != nil {
		return nil, err
	}
	httpDuration, err := meter.Float64Histogram("dotation_http_request_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	eligibilityOutcome, err := meter.Int64Counter("dotation_eligibility_evaluations_total")
	if err != nil {
		return nil, err
	}
	sizeSelections, err := meter.Int64Counter("dotation_size_selections_total")
	if err != nil {
		return nil, err
	}
	receptions, err := meter.Int64Counter("dotation_order_receptions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		httpRequests:       httpRequests,
		httpDuration:       httpDuration,
		eligibilityOutcome: eligibilityOutcome,
		sizeSelections:     sizeSelections,
		receptions:         receptions,
	}, nil
}

// RecordHTTPRequest counts a served request and observes its latency.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("method", strings.ToUpper(strings.TrimSpace(method))),
		attribute.String("route", strings.TrimSpace(route)),
		attribute.Int("status_code", status),
	)
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordEligibility counts roster entries by eligibility outcome.
func (m *Metrics) RecordEligibility(ctx context.Context, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.eligibilityOutcome.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordSizeSelections counts persisted size choices.
func (m *Metrics) RecordSizeSelections(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sizeSelections.Add(ctx, int64(count))
}

// RecordReception counts reception registrations by resulting order state.
func (m *Metrics) RecordReception(ctx context.Context, state string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("state", strings.TrimSpace(state)))
	m.receptions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"method":      {},
	"route":       {},
	"status_code": {},
	"outcome":     {},
	"state":       {},
	"reason":      {},
	"job":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
