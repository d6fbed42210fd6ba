package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/jetconf-go/internal/infra/buildinfo"
)

// Collector exports build information as a constant gauge,
// jetconf_build_info{version,commit,go_version} 1.
type Collector struct {
	desc *prometheus.Desc
}

// NewCollector creates a build information collector.
func NewCollector() *Collector {
	return &Collector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "build_info"),
			"Build information of the running server.",
			[]string{"version", "commit", "go_version"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	info := buildinfo.Get()
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, 1,
		info.Version, info.Commit, info.GoVersion)
}
