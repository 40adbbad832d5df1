package metrics

import (
	"net/http"

	"github.com/diwise/water-network/internal/pkg/application"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace string = "waternetwork"

// Collector exposes the current network statistics each time it is scraped.
type Collector struct {
	stats func() application.Stats

	devices         *prometheus.Desc
	gateWalls       *prometheus.Desc
	activeGateWalls *prometheus.Desc
	pipelines       *prometheus.Desc
	activePipelines *prometheus.Desc
	sweeps          *prometheus.Desc
	autoShutdowns   *prometheus.Desc
}

func NewCollector(stats func() application.Stats) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}

	return &Collector{
		stats:           stats,
		devices:         desc("devices", "Number of registered devices"),
		gateWalls:       desc("gatewalls", "Number of registered gate walls"),
		activeGateWalls: desc("gatewalls_active", "Number of gate walls with an open flow direction"),
		pipelines:       desc("pipelines", "Number of pipelines"),
		activePipelines: desc("pipelines_active", "Number of pipelines with flow"),
		sweeps:          desc("simulation_sweeps_total", "Number of completed simulation sweeps"),
		autoShutdowns:   desc("gatewall_auto_shutdowns_total", "Number of gate walls closed because of a depleted battery"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.devices
	ch <- c.gateWalls
	ch <- c.activeGateWalls
	ch <- c.pipelines
	ch <- c.activePipelines
	ch <- c.sweeps
	ch <- c.autoShutdowns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()

	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(c.devices, s.Devices)
	gauge(c.gateWalls, s.GateWalls)
	gauge(c.activeGateWalls, s.ActiveGateWalls)
	gauge(c.pipelines, s.Pipelines)
	gauge(c.activePipelines, s.ActivePipelines)
	counter(c.sweeps, s.Sweeps)
	counter(c.autoShutdowns, s.AutoShutdowns)
}

// NewRegistry registers the network collector next to the go runtime and
// process collectors.
func NewRegistry(stats func() application.Stats) *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		NewCollector(stats),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func Handler(r *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(r, promhttp.HandlerOpts{Registry: r})
}
