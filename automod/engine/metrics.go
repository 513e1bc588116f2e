package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messageProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "automod_message_duration_sec",
	Help: "Total duration of automod message processing",
})

var messageProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_messages_processed",
	Help: "Number of messages processed, by outcome",
}, []string{"outcome"})

var messageErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_message_errors",
	Help: "Number of messages which failed processing",
})

var violationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_violations",
	Help: "Number of rule violations detected",
}, []string{"kind"})

var messageDeleteCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_message_deletes",
	Help: "Number of message deletions attempted, by result",
}, []string{"result"})

var inviteResolutions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_invite_resolutions",
	Help: "Number of invite codes resolved (API calls)",
})
