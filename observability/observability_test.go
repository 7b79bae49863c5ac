package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type countingObserver struct {
	NoopObserver
	rejected []string
}

func (c *countingObserver) OnUploadRejected(_ context.Context, _ string, code string) {
	c.rejected = append(c.rejected, code)
}

func TestInitDisabledKeepsNoop(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	assert.IsType(t, NoopObserver{}, GetObserver())
}

func TestInitEnabled(t *testing.T) {
	t.Cleanup(func() { SetObserver(nil) })

	shutdown, err := Init(Config{
		ServiceName:   "clickfit-test",
		Environment:   "test",
		EnableTracing: true,
		EnableMetrics: true,
	})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, ok := GetObserver().(*otelObserver)
	assert.True(t, ok)

	ctx, span := StartSpan(context.Background(), "test")
	GetObserver().OnUploadEnd(ctx, "image-1-2.png", 10, time.Millisecond, true)
	span.End()
}

func TestSetObserver(t *testing.T) {
	t.Cleanup(func() { SetObserver(nil) })

	custom := &countingObserver{}
	SetObserver(custom)
	GetObserver().OnUploadRejected(context.Background(), "a.exe", "INVALID_FILE_TYPE")

	assert.Equal(t, []string{"INVALID_FILE_TYPE"}, custom.rejected)

	SetObserver(nil)
	assert.IsType(t, NoopObserver{}, GetObserver())
}

func TestOtelObserverRecordsSpanEventsAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	obs, err := newOtelObserver(tp.Tracer("test"), mp.Meter("test"))
	require.NoError(t, err)

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	obs.OnUploadRejected(ctx, "evil.exe", "INVALID_EXTENSION")
	obs.OnImageDelete(ctx, "image-1-2.png", "deleted")
	obs.OnStorageOperation(ctx, "store", "local", 2*time.Millisecond, true)
	span.End()

	ended := recorder.Ended()
	require.NotEmpty(t, ended)
	var names []string
	for _, s := range ended {
		if s.Name() != "request" {
			continue
		}
		for _, ev := range s.Events() {
			names = append(names, ev.Name)
		}
	}
	assert.Equal(t, []string{"upload.rejected", "gallery.delete", "storage.operation"}, names)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
		}
	}
	assert.True(t, found["clickfit.upload.rejections"])
	assert.True(t, found["clickfit.gallery.deletes"])
	assert.True(t, found["clickfit.storage.duration"])
}

func TestSpanHelpersWithoutSpan(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		AddSpanEvent(ctx, "noop", map[string]string{"k": "v"})
		SetSpanAttributes(ctx, nil)
	})
}
