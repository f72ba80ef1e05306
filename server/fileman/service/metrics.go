package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"file_broker/server/fileman/domain"
)

type Metrics struct {
	operations *prometheus.CounterVec
	swept      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filebroker_file_operations_total",
			Help: "File lifecycle operations by operation and result.",
		}, []string{"operation", "result"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filebroker_stale_uploads_swept_total",
			Help: "Stale uploading records removed by the sweeper.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.swept)
	}
	return m
}

func (m *Metrics) observe(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = domain.KindOf(err).String()
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) addSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
