package diagnosis

import (
	"time"

	"github.com/jordigilh/rounds/pkg/metrics"
)

// recordDiagnosisMetrics updates m with a completed call's cost and
// latency. m may be nil: diagnosers work fine with no metrics wired.
func recordDiagnosisMetrics(m *metrics.Metrics, backend string, start time.Time, costUSD float64) {
	if m == nil {
		return
	}
	m.DiagnosisCostUSD.Add(costUSD)
	m.DiagnosisDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}
