package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/dvmnet/go-dvm/models"
)

type OtelMetricService struct {
	meter         metric.Meter
	meterProvider *sdkmetric.MeterProvider
	logger        models.Logger

	counterLock sync.Mutex
	counters    map[models.MetricName]metric.Int64Counter

	histogramLock sync.Mutex
	histograms    map[models.MetricName]metric.Int64Histogram
}

func NewMetricService(logger models.Logger) (models.MetricService, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	return &OtelMetricService{
		meter:         meterProvider.Meter(models.MetricsCallerName),
		meterProvider: meterProvider,
		logger:        logger,
		counters:      make(map[models.MetricName]metric.Int64Counter),
		histograms:    make(map[models.MetricName]metric.Int64Histogram),
	}, nil
}

func (o *OtelMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	counter, err := o.counter(name)
	if err != nil {
		return err
	}
	counter.Add(ctx, int64(val))
	return nil
}

func (o *OtelMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	histogram, err := o.histogram(name)
	if err != nil {
		return err
	}
	histogram.Record(ctx, int64(val))
	return nil
}

func (o *OtelMetricService) Shutdown(ctx context.Context) {
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		o.logger.Errorf("metrics: error shutting down meter provider: %v", err)
	}
}

func (o *OtelMetricService) counter(name models.MetricName) (metric.Int64Counter, error) {
	o.counterLock.Lock()
	defer o.counterLock.Unlock()

	if counter, found := o.counters[name]; found {
		return counter, nil
	}
	counter, err := o.meter.Int64Counter(string(name))
	if err != nil {
		return nil, err
	}
	o.counters[name] = counter
	return counter, nil
}

func (o *OtelMetricService) histogram(name models.MetricName) (metric.Int64Histogram, error) {
	o.histogramLock.Lock()
	defer o.histogramLock.Unlock()

	if histogram, found := o.histograms[name]; found {
		return histogram, nil
	}
	histogram, err := o.meter.Int64Histogram(string(name))
	if err != nil {
		return nil, err
	}
	o.histograms[name] = histogram
	return histogram, nil
}
