// Package metrics exposes bridge counters and the latest parameter values
// in the Prometheus exposition format.
package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-ism7/internal/bridges/ism7"
)

const namespace = "ism7"

// Collector records bridge activity into a private Prometheus registry.
// It implements ism7.Observer.
type Collector struct {
	registry *prometheus.Registry

	parameterValue   *prometheus.GaugeVec
	telegrams        *prometheus.CounterVec
	conversionErrors *prometheus.CounterVec
	writes           *prometheus.CounterVec
	lastTelegram     *prometheus.GaugeVec
	goroutines       prometheus.GaugeFunc
}

// NewCollector creates a Collector with its own registry, including the
// standard Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		parameterValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parameter_value",
			Help:      "Latest numeric value of a controller parameter.",
		}, []string{"device", "ptid", "name"}),
		telegrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegrams_received_total",
			Help:      "Telegrams received from the gateway.",
		}, []string{"device"}),
		conversionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_errors_total",
			Help:      "Telegrams that could not be converted to a value.",
		}, []string{"device"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Write requests by outcome.",
		}, []string{"device", "status"}),
		lastTelegram: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_telegram_timestamp_seconds",
			Help:      "Unix time of the last telegram batch received.",
		}, []string{"device"}),
	}
	c.goroutines = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bridge_goroutines",
		Help:      "Goroutines running in the bridge process.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	c.registry.MustRegister(
		c.parameterValue,
		c.telegrams,
		c.conversionErrors,
		c.writes,
		c.lastTelegram,
		c.goroutines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveReading sets the parameter value gauge.
func (c *Collector) ObserveReading(deviceID string, ptid int, name string, value float64) {
	c.parameterValue.WithLabelValues(deviceID, strconv.Itoa(ptid), name).Set(value)
}

// ObserveTelegrams counts a batch of received telegrams.
func (c *Collector) ObserveTelegrams(deviceID string, n int) {
	if n <= 0 {
		return
	}
	c.telegrams.WithLabelValues(deviceID).Add(float64(n))
	c.lastTelegram.WithLabelValues(deviceID).Set(float64(time.Now().Unix()))
}

// ObserveConversionError counts a telegram that failed conversion.
func (c *Collector) ObserveConversionError(deviceID string) {
	c.conversionErrors.WithLabelValues(deviceID).Inc()
}

// ObserveWrite counts a write request by its outcome.
func (c *Collector) ObserveWrite(deviceID string, status ism7.AckStatus) {
	c.writes.WithLabelValues(deviceID, string(status)).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler serving /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var _ ism7.Observer = (*Collector)(nil)
