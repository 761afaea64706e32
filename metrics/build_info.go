package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterBuildInfo 暴露 fangoost_build_info 常量指标，重复调用只生效一次。
func (m *Metrics) RegisterBuildInfo(serviceName, version string) {
	if m == nil || m.BuildInfo != nil {
		return
	}
	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fangoost",
		Name:      "build_info",
		Help:      "Service name, version and Go runtime of the running pricer",
	}, []string{"service", "version", "goversion"})
	m.BuildInfo.WithLabelValues(orUnknown(serviceName), orUnknown(version), runtime.Version()).Set(1)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
