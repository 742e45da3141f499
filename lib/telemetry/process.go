package telemetry

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// InstrumentProcess registers gauges sampling this process whenever the
// provider collects. Scrape runs are short lived, so the values reach the
// exporter on its final collection at shutdown at the latest.
func InstrumentProcess(provider otelmetric.MeterProvider) (otelmetric.Registration, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	meter := provider.Meter("sidebyside.process")
	cpuGauge, err := meter.Float64ObservableGauge("process.cpu.percent")
	if err != nil {
		return nil, err
	}
	rssGauge, err := meter.Int64ObservableGauge("process.memory.rss", otelmetric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	heapGauge, err := meter.Int64ObservableGauge("process.heap.alloc", otelmetric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	goroutineGauge, err := meter.Int64ObservableGauge("process.goroutines")
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(ctx context.Context, o otelmetric.Observer) error {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		o.ObserveInt64(heapGauge, int64(memStats.HeapAlloc))
		o.ObserveInt64(goroutineGauge, int64(runtime.NumGoroutine()))

		// cpu and rss are best effort, some platforms do not expose them
		if usage, err := proc.CPUPercentWithContext(ctx); err == nil {
			o.ObserveFloat64(cpuGauge, usage)
		}
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
			o.ObserveInt64(rssGauge, int64(mem.RSS))
		}
		return nil
	}, cpuGauge, rssGauge, heapGauge, goroutineGauge)
}
