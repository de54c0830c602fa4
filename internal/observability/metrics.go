package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slipvault/slipvault/internal/config"
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

// Metrics exposes application-level instruments. All record methods are
// nil-safe so callers never need to guard for a disabled pipeline.
type Metrics struct {
	slipsCreated       metric.Int64Counter
	slipsUpdated       metric.Int64Counter
	slipsDeleted       metric.Int64Counter
	duplicatesFlagged  metric.Int64Counter
	authzDenied        metric.Int64Counter
	extractionFailures metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.MetricsEnabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.MetricsExporter, cfg.MetricsEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down meter provider")
			return provider.Shutdown(ctx)
		},
	})

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.MetricsEndpoint),
		zap.String("protocol", cfg.MetricsExporter),
	)
	return provider, nil
}

// NewMetrics configures the domain instruments.
func NewMetrics(cfg config.Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "slipvault"
	}
	meter := provider.Meter(name)

	slipsCreated, err := meter.Int64Counter("slipvault_slips_created_total")
	if err != nil {
		return nil, err
	}
	slipsUpdated, err := meter.Int64Counter("slipvault_slips_updated_total")
	if err != nil {
		return nil, err
	}
	slipsDeleted, err := meter.Int64Counter("slipvault_slips_deleted_total")
	if err != nil {
		return nil, err
	}
	duplicatesFlagged, err := meter.Int64Counter("slipvault_duplicates_flagged_total")
	if err != nil {
		return nil, err
	}
	authzDenied, err := meter.Int64Counter("slipvault_authz_denied_total")
	if err != nil {
		return nil, err
	}
	extractionFailures, err := meter.Int64Counter("slipvault_extraction_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		slipsCreated:       slipsCreated,
		slipsUpdated:       slipsUpdated,
		slipsDeleted:       slipsDeleted,
		duplicatesFlagged:  duplicatesFlagged,
		authzDenied:        authzDenied,
		extractionFailures: extractionFailures,
	}, nil
}

func (m *Metrics) SlipCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.slipsCreated.Add(ctx, 1)
}

func (m *Metrics) SlipUpdated(ctx context.Context) {
	if m == nil {
		return
	}
	m.slipsUpdated.Add(ctx, 1)
}

func (m *Metrics) SlipDeleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.slipsDeleted.Add(ctx, 1)
}

func (m *Metrics) DuplicateFlagged(ctx context.Context) {
	if m == nil {
		return
	}
	m.duplicatesFlagged.Add(ctx, 1)
}

func (m *Metrics) AuthzDenied(ctx context.Context) {
	if m == nil {
		return
	}
	m.authzDenied.Add(ctx, 1)
}

// ExtractionFailed records a structured extraction failure by reason so
// noisy providers are visible without logging payloads.
func (m *Metrics) ExtractionFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.extractionFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"reason":      {},
	"status_code": {},
	"endpoint":    {},
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
