// Package observability provides OpenTelemetry integration for Click Fit.
//
// A process-wide Observer receives upload, storage, gallery and locale
// events. The default observer does nothing; Init installs one backed by
// OpenTelemetry tracer and meter providers.
//
// Example usage:
//
//	shutdown, err := observability.Init(observability.Config{
//	    ServiceName:   "clickfit",
//	    EnableTracing: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer shutdown(context.Background())
//
//	ctx, span := observability.StartSpan(ctx, "gallery.list")
//	defer span.End()
package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/kdsmith18542/clickfit"

// Config holds the configuration for observability initialization
type Config struct {
	// ServiceName is the name of the service for tracing and metrics
	ServiceName string
	// ServiceVersion is the version of the service
	ServiceVersion string
	// Environment is the deployment environment (development, production)
	Environment string
	// EnableTracing enables distributed tracing
	EnableTracing bool
	// EnableMetrics enables metrics collection
	EnableMetrics bool
}

// Observer receives Click Fit events.
type Observer interface {
	// Upload observability
	OnUploadStart(ctx context.Context, originalName string, size int64)
	OnUploadEnd(ctx context.Context, filename string, size int64, duration time.Duration, success bool)
	OnUploadRejected(ctx context.Context, originalName string, code string)

	// Storage observability
	OnStorageOperation(ctx context.Context, operation string, backend string, duration time.Duration, success bool)

	// Gallery observability
	OnGalleryList(ctx context.Context, count int, duration time.Duration)
	OnImageDelete(ctx context.Context, filename string, outcome string)

	// Message bundle observability
	OnLocaleDetection(ctx context.Context, detectedLocale string, fallbackUsed bool)
}

// ShutdownFunc flushes and stops the providers installed by Init.
type ShutdownFunc func(ctx context.Context) error

var (
	mu             sync.RWMutex
	globalObserver Observer = NoopObserver{}
)

// Init installs OpenTelemetry providers and an Observer backed by them.
// When neither tracing nor metrics is enabled the no-op observer stays in
// place and the returned ShutdownFunc does nothing.
func Init(config Config) (ShutdownFunc, error) {
	if !config.EnableTracing && !config.EnableMetrics {
		SetObserver(NoopObserver{})
		return func(context.Context) error { return nil }, nil
	}

	shutdown, err := initOpenTelemetry(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	observer, err := newOtelObserver(otel.Tracer(instrumentationName), otel.Meter(instrumentationName))
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}
	SetObserver(observer)

	return shutdown, nil
}

// SetObserver sets a custom observer for observability events
func SetObserver(observer Observer) {
	if observer == nil {
		observer = NoopObserver{}
	}
	mu.Lock()
	globalObserver = observer
	mu.Unlock()
}

// GetObserver returns the current observer instance
func GetObserver() Observer {
	mu.RLock()
	defer mu.RUnlock()
	return globalObserver
}

// StartSpan starts a new span for tracing
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// AddSpanEvent adds an event to the current span
func AddSpanEvent(ctx context.Context, name string, attributes map[string]string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes sets attributes on the current span
func SetSpanAttributes(ctx context.Context, attributes map[string]string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	span.SetAttributes(attrs...)
}

// NoopObserver ignores every event.
type NoopObserver struct{}

func (NoopObserver) OnUploadStart(context.Context, string, int64) {}
func (NoopObserver) OnUploadEnd(context.Context, string, int64, time.Duration, bool) {
}
func (NoopObserver) OnUploadRejected(context.Context, string, string) {}
func (NoopObserver) OnStorageOperation(context.Context, string, string, time.Duration, bool) {
}
func (NoopObserver) OnGalleryList(context.Context, int, time.Duration)   {}
func (NoopObserver) OnImageDelete(context.Context, string, string)      {}
func (NoopObserver) OnLocaleDetection(context.Context, string, bool)     {}

// otelObserver implements Observer using OpenTelemetry
type otelObserver struct {
	tracer trace.Tracer

	uploads       metric.Int64Counter
	uploadBytes   metric.Int64Counter
	rejections    metric.Int64Counter
	storageOps    metric.Float64Histogram
	listDurations metric.Float64Histogram
	deletes       metric.Int64Counter
}

func newOtelObserver(tracer trace.Tracer, meter metric.Meter) (*otelObserver, error) {
	o := &otelObserver{tracer: tracer}
	var errs []error
	var err error

	o.uploads, err = meter.Int64Counter("clickfit.uploads", metric.WithDescription("Stored uploads by outcome"))
	errs = append(errs, err)
	o.uploadBytes, err = meter.Int64Counter("clickfit.upload.bytes", metric.WithUnit("By"))
	errs = append(errs, err)
	o.rejections, err = meter.Int64Counter("clickfit.upload.rejections", metric.WithDescription("Rejected files by code"))
	errs = append(errs, err)
	o.storageOps, err = meter.Float64Histogram("clickfit.storage.duration", metric.WithUnit("ms"))
	errs = append(errs, err)
	o.listDurations, err = meter.Float64Histogram("clickfit.gallery.list.duration", metric.WithUnit("ms"))
	errs = append(errs, err)
	o.deletes, err = meter.Int64Counter("clickfit.gallery.deletes", metric.WithDescription("Delete requests by outcome"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	return o, nil
}

func (o *otelObserver) OnUploadStart(ctx context.Context, originalName string, size int64) {
	_, span := o.tracer.Start(ctx, "upload.start", trace.WithAttributes(
		attribute.String("file.original_name", originalName),
		attribute.Int64("file.size", size),
	))
	span.End()
}

func (o *otelObserver) OnUploadEnd(ctx context.Context, filename string, size int64, duration time.Duration, success bool) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	o.uploads.Add(ctx, 1, attrs)
	if success {
		o.uploadBytes.Add(ctx, size)
	}
	AddSpanEvent(ctx, "upload.completed", map[string]string{
		"file.name":   filename,
		"file.size":   fmt.Sprintf("%d", size),
		"success":     fmt.Sprintf("%t", success),
		"duration.ms": millis(duration),
	})
}

func (o *otelObserver) OnUploadRejected(ctx context.Context, originalName string, code string) {
	o.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
	AddSpanEvent(ctx, "upload.rejected", map[string]string{
		"file.original_name": originalName,
		"code":               code,
	})
}

func (o *otelObserver) OnStorageOperation(ctx context.Context, operation string, backend string, duration time.Duration, success bool) {
	o.storageOps.Record(ctx, float64(duration.Microseconds())/1000.0, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("storage.type", backend),
		attribute.Bool("success", success),
	))
	AddSpanEvent(ctx, "storage.operation", map[string]string{
		"operation":    operation,
		"storage.type": backend,
		"success":      fmt.Sprintf("%t", success),
		"duration.ms":  millis(duration),
	})
}

func (o *otelObserver) OnGalleryList(ctx context.Context, count int, duration time.Duration) {
	o.listDurations.Record(ctx, float64(duration.Microseconds())/1000.0)
	SetSpanAttributes(ctx, map[string]string{"gallery.count": fmt.Sprintf("%d", count)})
}

func (o *otelObserver) OnImageDelete(ctx context.Context, filename string, outcome string) {
	o.deletes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	AddSpanEvent(ctx, "gallery.delete", map[string]string{
		"file.name": filename,
		"outcome":   outcome,
	})
}

func (o *otelObserver) OnLocaleDetection(ctx context.Context, detectedLocale string, fallbackUsed bool) {
	AddSpanEvent(ctx, "messages.locale.detected", map[string]string{
		"locale":        detectedLocale,
		"fallback.used": fmt.Sprintf("%t", fallbackUsed),
	})
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d.Microseconds())/1000.0)
}

// initOpenTelemetry installs global tracer and meter providers. No exporter
// is attached; deployments add one through the standard OTEL_* variables
// picked up by resource.WithFromEnv or by wrapping these providers.
func initOpenTelemetry(config Config) (ShutdownFunc, error) {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var shutdowns []ShutdownFunc

	if config.EnableTracing {
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if config.EnableMetrics {
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}
