package config

/* --------------------------------- Metrics Config Defaults -------------------------------- */

const (
	defaultPrometheusAddr = ":9090"
	defaultPprofAddr      = ":6060"
	defaultHealthzAddr    = ":8080"
)

/* --------------------------------- Metrics Config Struct -------------------------------- */

// MetricsConfig sets the listen addresses of the servers started by `ledgerctl serve`.
type MetricsConfig struct {
	PrometheusAddr string `yaml:"prometheus_addr"`
	PprofAddr      string `yaml:"pprof_addr"`
	HealthzAddr    string `yaml:"healthz_addr"`
}

func (c *MetricsConfig) hydrateMetricsDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = defaultPrometheusAddr
	}
	if c.PprofAddr == "" {
		c.PprofAddr = defaultPprofAddr
	}
	if c.HealthzAddr == "" {
		c.HealthzAddr = defaultHealthzAddr
	}
}
