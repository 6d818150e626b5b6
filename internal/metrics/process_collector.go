package metrics

import (
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// PIDSource reports the live pid per role at scrape time.
type PIDSource func() map[string]int

// ProcessCollector exports CPU and memory usage of the live role processes.
// Samples are taken while Prometheus scrapes; nothing polls in between.
type ProcessCollector struct {
	source PIDSource
	log    *slog.Logger

	cpuPercent *prometheus.Desc
	rssBytes   *prometheus.Desc
	numThreads *prometheus.Desc
}

func NewProcessCollector(source PIDSource, log *slog.Logger) *ProcessCollector {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessCollector{
		source: source,
		log:    log,
		cpuPercent: prometheus.NewDesc("devorch_process_cpu_percent",
			"CPU usage of the role process since it started.", []string{"role", "pid"}, nil),
		rssBytes: prometheus.NewDesc("devorch_process_memory_rss_bytes",
			"Resident set size of the role process.", []string{"role", "pid"}, nil),
		numThreads: prometheus.NewDesc("devorch_process_threads",
			"Thread count of the role process.", []string{"role", "pid"}, nil),
	}
}

func (c *ProcessCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuPercent
	ch <- c.rssBytes
	ch <- c.numThreads
}

func (c *ProcessCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	for role, pid := range c.source() {
		if pid <= 0 {
			continue
		}
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			// exited between the status snapshot and the scrape
			c.log.Debug("process metrics unavailable", "role", role, "pid", pid, "error", err)
			continue
		}
		pidLabel := strconv.Itoa(pid)
		if v, err := p.CPUPercent(); err == nil {
			ch <- prometheus.MustNewConstMetric(c.cpuPercent, prometheus.GaugeValue, v, role, pidLabel)
		}
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			ch <- prometheus.MustNewConstMetric(c.rssBytes, prometheus.GaugeValue, float64(mi.RSS), role, pidLabel)
		}
		if n, err := p.NumThreads(); err == nil {
			ch <- prometheus.MustNewConstMetric(c.numThreads, prometheus.GaugeValue, float64(n), role, pidLabel)
		}
	}
}
