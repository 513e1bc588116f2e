package tempaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "tempaction_pass_duration_sec",
	Help: "Duration of temp action scheduler passes",
})

var reversals = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tempaction_reversals",
	Help: "Number of expired temp actions handled, by kind and result",
}, []string{"kind", "result"})
